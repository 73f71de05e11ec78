package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prateek/heaplens/graph"
)

type fakeSnapshot struct {
	classNames map[graph.ObjectId]string
}

func (s *fakeSnapshot) RetrieveRecordById(id graph.ObjectId) (graph.Record, error) {
	return graph.InstanceRecord{InstanceId: id}, nil
}

func (s *fakeSnapshot) ObjectIdMetadata(id graph.ObjectId) graph.ObjectIdMetadata {
	return graph.Instance
}

func (s *fakeSnapshot) ClassName(classId graph.ObjectId) string { return s.classNames[classId] }

func (s *fakeSnapshot) HprofStringById(stringId graph.ObjectId) string { return "" }

func (s *fakeSnapshot) HydrateInstance(rec graph.InstanceRecord) (graph.HydratedInstance, error) {
	return graph.HydratedInstance{
		ClassHierarchy: []graph.ClassInfo{{ClassName: s.classNames[rec.InstanceId]}},
	}, nil
}

func (s *fakeSnapshot) IdSize() int { return 8 }

func TestPathString(t *testing.T) {
	snap := &fakeSnapshot{classNames: map[graph.ObjectId]string{
		1: "com.example.Root",
		2: "com.example.Holder",
		3: "com.example.Leaked",
	}}

	root := graph.NewRootNode(1)
	child := graph.NewChildNode(root, 2, graph.LeakReference{Kind: graph.InstanceField, Name: "cache"}, nil)
	leaf := graph.NewChildNode(child, 3, graph.LeakReference{Kind: graph.ArrayEntry, Name: "3"}, nil)

	got := PathString(snap, leaf)
	require.Equal(t, "com.example.Root → cache.com.example.Holder → [3].com.example.Leaked", got)
}

func TestPathStringNilNode(t *testing.T) {
	require.Equal(t, "", PathString(&fakeSnapshot{}, nil))
}

func TestWriteTable(t *testing.T) {
	snap := &fakeSnapshot{classNames: map[graph.ObjectId]string{
		1: "com.example.Root",
		2: "com.example.Leaked",
	}}
	root := graph.NewRootNode(1)
	leaf := graph.NewChildNode(root, 2, graph.LeakReference{Kind: graph.InstanceField, Name: "next"}, nil)
	size := uint64(2048)
	status := graph.WeaklyReachable

	var buf bytes.Buffer
	WriteTable(&buf, snap, []graph.Result{{
		LeakingNode:      leaf,
		ExclusionStatus:  &status,
		WeakReference:    graph.WeakRefMirror{Referent: 2, ClassName: "com.example.Leaked"},
		RetainedHeapSize: &size,
	}})

	out := buf.String()
	require.True(t, strings.Contains(out, "com.example.Leaked"))
	require.True(t, strings.Contains(out, "WEAKLY_REACHABLE"))
	require.True(t, strings.Contains(out, "2.0 kB"))
}

func TestSummary(t *testing.T) {
	require.Equal(t, "dump.hprof: 0 leak(s) found", Summary("dump.hprof", nil))

	size := uint64(1024)
	got := Summary("dump.hprof", []graph.Result{{RetainedHeapSize: &size}})
	require.Equal(t, "dump.hprof: 1 leak(s) found, 1.0 kB retained", got)
}
