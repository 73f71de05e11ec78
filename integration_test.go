// ABOUTME: Integration tests for the complete HeapLens system
// ABOUTME: Validates end-to-end retained-path analysis with JSON dumps

package heaplens_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prateek/heaplens/analyzer"
	"github.com/prateek/heaplens/graph"
	"github.com/prateek/heaplens/heapdump"
)

func openJSON(t *testing.T, data string) *heapdump.JSONSnapshot {
	t.Helper()
	snap, err := heapdump.Open(strings.NewReader(data))
	require.NoError(t, err)
	js, ok := snap.(*heapdump.JSONSnapshot)
	require.True(t, ok, "expected *heapdump.JSONSnapshot, got %T", snap)
	return js
}

func TestEndToEndJSONParsing(t *testing.T) {
	js := openJSON(t, `{
		"objects": [
			{"id": 1, "kind": "instance", "class": "root", "size": 10, "fields": {"next": 2}},
			{"id": 2, "kind": "instance", "class": "shared", "size": 20, "fields": {"next": 3}},
			{"id": 3, "kind": "instance", "class": "leaf", "size": 30}
		],
		"roots": [1]
	}`)

	require.Equal(t, 3, js.NumObjects())
	require.Equal(t, []graph.ObjectId{1}, js.Roots())
}

func TestFindPathsIntegration_LinearChain(t *testing.T) {
	js := openJSON(t, `{
		"objects": [
			{"id": 1, "kind": "instance", "class": "root", "fields": {"next": 2}},
			{"id": 2, "kind": "instance", "class": "middle", "size": 20, "fields": {"next": 3}},
			{"id": 3, "kind": "instance", "class": "leak", "size": 30}
		],
		"roots": [1]
	}`)

	results, err := analyzer.FindPaths(
		context.Background(),
		js,
		func(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil },
		[]graph.WeakRefMirror{{Referent: 3, ClassName: "leak"}},
		js.Roots(),
		false,
		graph.NoopProgressListener{},
	)
	require.NoError(t, err)
	require.Len(t, results, 1)

	var ids []graph.ObjectId
	for n := results[0].LeakingNode; n != nil; n = n.Parent {
		ids = append([]graph.ObjectId{n.Instance}, ids...)
	}
	require.Equal(t, []graph.ObjectId{1, 2, 3}, ids)
}

func TestFindPathsIntegration_SharedChildTwoRoots(t *testing.T) {
	js := openJSON(t, `{
		"objects": [
			{"id": 1, "kind": "instance", "class": "root1", "size": 10, "fields": {"toShared": 3}},
			{"id": 2, "kind": "instance", "class": "root2", "size": 20, "fields": {"toShared": 3}},
			{"id": 3, "kind": "instance", "class": "leak1", "size": 30},
			{"id": 4, "kind": "instance", "class": "leak2", "size": 40}
		],
		"roots": [1, 2]
	}`)

	results, err := analyzer.FindPaths(
		context.Background(),
		js,
		func(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil },
		[]graph.WeakRefMirror{{Referent: 3, ClassName: "leak1"}},
		js.Roots(),
		true,
		graph.NoopProgressListener{},
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].RetainedHeapSize)
	require.Equal(t, uint64(30), *results[0].RetainedHeapSize)
}

func TestFindPathsIntegration_CyclicGraph(t *testing.T) {
	js := openJSON(t, `{
		"objects": [
			{"id": 1, "kind": "instance", "class": "root", "fields": {"next": 2}},
			{"id": 2, "kind": "instance", "class": "node1", "fields": {"next": 3}},
			{"id": 3, "kind": "instance", "class": "node2", "fields": {"back": 2, "next": 4}},
			{"id": 4, "kind": "instance", "class": "leak", "size": 40}
		],
		"roots": [1]
	}`)

	results, err := analyzer.FindPaths(
		context.Background(),
		js,
		func(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil },
		[]graph.WeakRefMirror{{Referent: 4, ClassName: "leak"}},
		js.Roots(),
		false,
		graph.NoopProgressListener{},
	)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestFindPathsIntegration_UnreachableLeak(t *testing.T) {
	js := openJSON(t, `{
		"objects": [
			{"id": 1, "kind": "instance", "class": "root"},
			{"id": 2, "kind": "instance", "class": "unreachable", "size": 20}
		],
		"roots": [1]
	}`)

	results, err := analyzer.FindPaths(
		context.Background(),
		js,
		func(graph.Snapshot) ([]graph.Exclusion, error) { return nil, nil },
		[]graph.WeakRefMirror{{Referent: 2, ClassName: "unreachable"}},
		js.Roots(),
		false,
		graph.NoopProgressListener{},
	)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestEmptyGraph(t *testing.T) {
	js := openJSON(t, `{"objects": [], "roots": []}`)
	require.Equal(t, 0, js.NumObjects())
	require.Empty(t, js.Roots())
}
