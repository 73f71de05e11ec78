// ABOUTME: Tests for the exclusion index's lookup and hierarchy-overlay behaviour

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExclusionIndexStaticAndInstanceFieldLookup(t *testing.T) {
	idx := BuildExclusionIndex([]Exclusion{
		{Kind: StaticFieldExclusion, ClassName: "Foo", FieldName: "bar", Status: WeaklyReachable, Description: "static cache"},
		{Kind: InstanceFieldExclusion, ClassName: "Foo", FieldName: "cache", Status: NeverReachable, Description: "instance cache"},
		{Kind: ThreadExclusion, ThreadName: "Finalizer", Status: WeaklyReachable, Description: "finalizer thread"},
	})

	e, ok := idx.StaticField("Foo", "bar")
	assert.True(t, ok)
	assert.Equal(t, WeaklyReachable, e.Status)

	_, ok = idx.StaticField("Foo", "missing")
	assert.False(t, ok)

	e, ok = idx.InstanceField("Foo", "cache")
	assert.True(t, ok)
	assert.Equal(t, NeverReachable, e.Status)

	e, ok = idx.Thread("Finalizer")
	assert.True(t, ok)
	assert.Equal(t, WeaklyReachable, e.Status)
}

func TestMergedInstanceFieldExclusionsOverlaysSubclassLast(t *testing.T) {
	idx := BuildExclusionIndex([]Exclusion{
		{Kind: InstanceFieldExclusion, ClassName: "Base", FieldName: "shared", Status: WeaklyReachable},
		{Kind: InstanceFieldExclusion, ClassName: "Derived", FieldName: "shared", Status: NeverReachable},
	})

	hierarchy := []ClassInfo{
		{ClassName: "Base", FieldNames: []string{"shared"}},
		{ClassName: "Derived", FieldNames: []string{"shared"}},
	}

	merged := idx.MergedInstanceFieldExclusions(hierarchy)
	e, ok := merged["shared"]
	assert.True(t, ok)
	assert.Equal(t, NeverReachable, e.Status, "subclass entry added last overrides")
}
