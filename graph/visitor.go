// ABOUTME: Visitor dispatch: emits outbound references for class/instance/object-array records
// ABOUTME: All other record kinds are terminal leaves of the search (spec section 4.3)

package graph

import (
	"sort"
	"strconv"
)

// staticOverheadField is VM-internal bookkeeping and is never followed.
const staticOverheadField = "$staticOverhead"

// VisitContext bundles the collaborators the visitor needs: the snapshot
// to read records from, the frontier to enqueue children into, the
// exclusion index, and (when retained-size mode is on) the dominator
// tracker.
type VisitContext struct {
	Snapshot             Snapshot
	Frontier             *Frontier
	Exclusions           *ExclusionIndex
	Dominator            *DominatorTracker
	ComputeRetainedSize  bool
}

// Visit pops a node's record and dispatches on its kind. A missing or
// unrecognized record silently terminates the path; this is intentional
// per spec section 7 (primitive arrays and unhandled types have no
// outbound object references).
func Visit(ctx *VisitContext, node *LeakNode) error {
	rec, err := ctx.Snapshot.RetrieveRecordById(node.Instance)
	if err != nil {
		return nil
	}
	switch r := rec.(type) {
	case ClassRecord:
		return visitClass(ctx, node, r)
	case InstanceRecord:
		return visitInstance(ctx, node, r)
	case ObjectArrayRecord:
		return visitObjectArray(ctx, node, r)
	default:
		return nil
	}
}

func visitClass(ctx *VisitContext, node *LeakNode, rec ClassRecord) error {
	for _, field := range rec.StaticFields {
		if field.Name == staticOverheadField {
			continue
		}
		if !field.IsObjectRef || field.ObjectRef == 0 {
			continue
		}
		if ctx.ComputeRetainedSize {
			ctx.Dominator.Undominate(field.ObjectRef)
		}
		var priority *ExclusionStatus
		var desc *string
		if e, ok := ctx.Exclusions.StaticField(rec.ClassName, field.Name); ok {
			s := e.Status
			priority = &s
			d := e.Description
			desc = &d
		}
		ref := LeakReference{Kind: StaticField, Name: field.Name, DisplayValue: field.DisplayValue}
		child := NewChildNode(node, field.ObjectRef, ref, desc)
		ctx.Frontier.Enqueue(child, priority)
	}
	return nil
}

func visitInstance(ctx *VisitContext, node *LeakNode, rec InstanceRecord) error {
	hydrated, err := ctx.Snapshot.HydrateInstance(rec)
	if err != nil {
		return nil
	}
	merged := ctx.Exclusions.MergedInstanceFieldExclusions(hydrated.ClassHierarchy)

	type pair struct {
		name  string
		value HeapValue
	}
	var pairs []pair
	for i, class := range hydrated.ClassHierarchy {
		values := hydrated.FieldValues[i]
		for j, name := range class.FieldNames {
			if j >= len(values) {
				break
			}
			pairs = append(pairs, pair{name: name, value: values[j]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	for _, p := range pairs {
		if !p.value.IsObjectRef || p.value.ObjectRef == 0 {
			continue
		}
		child := p.value.ObjectRef
		if ctx.ComputeRetainedSize {
			if ctx.Snapshot.ObjectIdMetadata(child) == Class {
				ctx.Dominator.Undominate(child)
			} else if err := ctx.Dominator.UpdateDominator(node.Instance, child); err != nil {
				return err
			}
		}
		var priority *ExclusionStatus
		var desc *string
		if e, ok := merged[p.name]; ok {
			s := e.Status
			priority = &s
			d := e.Description
			desc = &d
		}
		ref := LeakReference{Kind: InstanceField, Name: p.name, DisplayValue: p.value.DisplayValue}
		childNode := NewChildNode(node, child, ref, desc)
		ctx.Frontier.Enqueue(childNode, priority)
	}
	return nil
}

func visitObjectArray(ctx *VisitContext, node *LeakNode, rec ObjectArrayRecord) error {
	for i, elementId := range rec.Elements {
		if elementId == 0 {
			continue
		}
		if ctx.ComputeRetainedSize {
			if ctx.Snapshot.ObjectIdMetadata(elementId) == Class {
				ctx.Dominator.Undominate(elementId)
			} else if err := ctx.Dominator.UpdateDominator(node.Instance, elementId); err != nil {
				return err
			}
		}
		ref := LeakReference{Kind: ArrayEntry, Name: strconv.Itoa(i)}
		child := NewChildNode(node, elementId, ref, nil)
		ctx.Frontier.Enqueue(child, nil)
	}
	return nil
}
