// ABOUTME: JSON stub parser for testing the retained-path analyzer end to end
// ABOUTME: Reads a small JSON heap format with objects, roots, weak refs and exclusions

package heapdump

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/prateek/heaplens/graph"
)

// JSONStub is a Parser for JSON test dumps, the lightweight fixture format
// used by heapdump's own tests, the root integration tests, the server and
// cmd/heaplens for quick manual runs against a hand-written heap.
type JSONStub struct{}

type jsonExclusion struct {
	Kind        string `json:"kind"` // "thread" | "staticField" | "instanceField"
	ThreadName  string `json:"threadName,omitempty"`
	ClassName   string `json:"className,omitempty"`
	FieldName   string `json:"fieldName,omitempty"`
	Status      string `json:"status"` // "ALWAYS_REACHABLE" | "WEAKLY_REACHABLE" | "NEVER_REACHABLE"
	Description string `json:"description,omitempty"`
}

type jsonWeakRef struct {
	Referent  graph.ObjectId `json:"referent"`
	Key       string         `json:"key,omitempty"`
	ClassName string         `json:"className,omitempty"`
}

type jsonObject struct {
	ID            graph.ObjectId            `json:"id"`
	Kind          string                    `json:"kind"` // "instance" | "class" | "objectArray" | "primitiveArray" | "string" | "primitiveWrapper" | "emptyInstance"
	Class         string                    `json:"class,omitempty"`
	Size          uint64                    `json:"size,omitempty"`
	Fields        map[string]graph.ObjectId `json:"fields,omitempty"`
	StaticFields  map[string]graph.ObjectId `json:"staticFields,omitempty"`
	Elements      []graph.ObjectId          `json:"elements,omitempty"`
	Primitive     string                    `json:"primitive,omitempty"` // boolean|byte|short|char|int|float|long|double
	Length        int                       `json:"length,omitempty"`
}

type jsonDump struct {
	Objects    []jsonObject    `json:"objects"`
	Roots      []graph.ObjectId `json:"roots"`
	WeakRefs   []jsonWeakRef   `json:"weakRefs,omitempty"`
	Exclusions []jsonExclusion `json:"exclusions,omitempty"`
}

// CanParse checks if the input looks like our JSON format.
func (p *JSONStub) CanParse(r io.Reader) bool {
	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	if n == 0 {
		return false
	}

	var probe struct {
		Objects json.RawMessage `json:"objects"`
	}
	if err := json.Unmarshal(buf[:n], &probe); err != nil {
		return false
	}
	return probe.Objects != nil
}

// Parse decodes the JSON dump into a JSONSnapshot.
func (p *JSONStub) Parse(r io.Reader) (graph.Snapshot, error) {
	var dump jsonDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("heapdump: decoding JSON dump: %w", err)
	}

	snap := NewJSONSnapshot()
	for i, obj := range dump.Objects {
		if obj.ID == 0 {
			return nil, fmt.Errorf("heapdump: object at index %d missing id", i)
		}
		if err := snap.addObject(obj); err != nil {
			return nil, err
		}
	}
	snap.roots = append(snap.roots, dump.Roots...)
	for _, wr := range dump.WeakRefs {
		snap.weakRefs = append(snap.weakRefs, graph.WeakRefMirror{Referent: wr.Referent, Key: wr.Key, ClassName: wr.ClassName})
	}
	for i, e := range dump.Exclusions {
		excl, err := decodeExclusion(e)
		if err != nil {
			return nil, fmt.Errorf("heapdump: exclusion at index %d: %w", i, err)
		}
		snap.exclusions = append(snap.exclusions, excl)
	}
	return snap, nil
}

func decodeExclusion(e jsonExclusion) (graph.Exclusion, error) {
	status, err := decodeStatus(e.Status)
	if err != nil {
		return graph.Exclusion{}, err
	}
	switch e.Kind {
	case "thread":
		return graph.Exclusion{Kind: graph.ThreadExclusion, ThreadName: e.ThreadName, Status: status, Description: e.Description}, nil
	case "staticField":
		return graph.Exclusion{Kind: graph.StaticFieldExclusion, ClassName: e.ClassName, FieldName: e.FieldName, Status: status, Description: e.Description}, nil
	case "instanceField":
		return graph.Exclusion{Kind: graph.InstanceFieldExclusion, ClassName: e.ClassName, FieldName: e.FieldName, Status: status, Description: e.Description}, nil
	default:
		return graph.Exclusion{}, fmt.Errorf("unknown exclusion kind %q", e.Kind)
	}
}

func decodeStatus(s string) (graph.ExclusionStatus, error) {
	switch s {
	case "ALWAYS_REACHABLE", "":
		return graph.AlwaysReachable, nil
	case "WEAKLY_REACHABLE":
		return graph.WeaklyReachable, nil
	case "NEVER_REACHABLE":
		return graph.NeverReachable, nil
	default:
		return 0, fmt.Errorf("unknown exclusion status %q", s)
	}
}

func init() {
	Register(&JSONStub{})
}
