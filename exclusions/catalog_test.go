package exclusions

import (
	"strings"
	"testing"

	"github.com/prateek/heaplens/graph"
)

func TestDecodeEmptyCatalog(t *testing.T) {
	cat, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("decode empty catalog: %v", err)
	}
	excl, err := cat.Exclusions()
	if err != nil {
		t.Fatalf("exclusions: %v", err)
	}
	if len(excl) != 0 {
		t.Errorf("expected 0 exclusions, got %d", len(excl))
	}
}

func TestDecodeCatalog(t *testing.T) {
	yamlDoc := `
threads:
  - name: "Finalizer"
    status: WEAKLY_REACHABLE
    description: "finalizer thread holds objects briefly before collection"
staticFields:
  - class: "com.example.Cache"
    field: "instance"
    status: NEVER_REACHABLE
instanceFields:
  - class: "com.example.WeakCache"
    field: "backingMap"
`
	cat, err := Decode(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	excl, err := cat.Exclusions()
	if err != nil {
		t.Fatalf("exclusions: %v", err)
	}
	if len(excl) != 3 {
		t.Fatalf("expected 3 exclusions, got %d", len(excl))
	}

	var thread, static, instance *graph.Exclusion
	for i := range excl {
		switch excl[i].Kind {
		case graph.ThreadExclusion:
			thread = &excl[i]
		case graph.StaticFieldExclusion:
			static = &excl[i]
		case graph.InstanceFieldExclusion:
			instance = &excl[i]
		}
	}

	if thread == nil || thread.ThreadName != "Finalizer" || thread.Status != graph.WeaklyReachable {
		t.Errorf("bad thread exclusion: %+v", thread)
	}
	if static == nil || static.ClassName != "com.example.Cache" || static.Status != graph.NeverReachable {
		t.Errorf("bad static field exclusion: %+v", static)
	}
	if instance == nil || instance.FieldName != "backingMap" || instance.Status != graph.AlwaysReachable {
		t.Errorf("bad instance field exclusion (should default to ALWAYS_REACHABLE): %+v", instance)
	}
}

func TestDecodeCatalogUnknownStatus(t *testing.T) {
	yamlDoc := `
threads:
  - name: "Weird"
    status: "SOMETIMES_REACHABLE"
`
	cat, err := Decode(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := cat.Exclusions(); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestFactory(t *testing.T) {
	cat := &Catalog{Threads: []ThreadRule{{Name: "GC", Status: "ALWAYS_REACHABLE"}}}
	factory := Factory(cat)
	excl, err := factory(nil)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if len(excl) != 1 {
		t.Errorf("expected 1 exclusion, got %d", len(excl))
	}
}
