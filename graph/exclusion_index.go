// ABOUTME: Class x field and class x static-field lookup for the exclusion policy
// ABOUTME: Built once per findPaths call from the exclusion sequence (spec section 4.2)

package graph

// ExclusionIndex is the three-way index built from the exclusion sequence
// produced by the external ExclusionsFactory. Lookup is by exact string
// match on the fully-qualified class name as resolved by the parser.
type ExclusionIndex struct {
	threads       map[string]Exclusion
	staticFields  map[string]map[string]Exclusion
	instanceFields map[string]map[string]Exclusion
}

// BuildExclusionIndex consumes the exclusion sequence once, per call.
func BuildExclusionIndex(exclusions []Exclusion) *ExclusionIndex {
	idx := &ExclusionIndex{
		threads:        make(map[string]Exclusion),
		staticFields:   make(map[string]map[string]Exclusion),
		instanceFields: make(map[string]map[string]Exclusion),
	}
	for _, e := range exclusions {
		switch e.Kind {
		case ThreadExclusion:
			idx.threads[e.ThreadName] = e
		case StaticFieldExclusion:
			m, ok := idx.staticFields[e.ClassName]
			if !ok {
				m = make(map[string]Exclusion)
				idx.staticFields[e.ClassName] = m
			}
			m[e.FieldName] = e
		case InstanceFieldExclusion:
			m, ok := idx.instanceFields[e.ClassName]
			if !ok {
				m = make(map[string]Exclusion)
				idx.instanceFields[e.ClassName] = m
			}
			m[e.FieldName] = e
		}
	}
	return idx
}

// Thread looks up a thread-name exclusion. Retained but currently unused by
// the search; reserved for the root-type extension (spec section 9, open
// question).
func (idx *ExclusionIndex) Thread(threadName string) (Exclusion, bool) {
	e, ok := idx.threads[threadName]
	return e, ok
}

// StaticField looks up a class x static-field exclusion.
func (idx *ExclusionIndex) StaticField(className, fieldName string) (Exclusion, bool) {
	m, ok := idx.staticFields[className]
	if !ok {
		return Exclusion{}, false
	}
	e, ok := m[fieldName]
	return e, ok
}

// InstanceField looks up a class x instance-field exclusion.
func (idx *ExclusionIndex) InstanceField(className, fieldName string) (Exclusion, bool) {
	m, ok := idx.instanceFields[className]
	if !ok {
		return Exclusion{}, false
	}
	e, ok := m[fieldName]
	return e, ok
}

// MergedInstanceFieldExclusions walks a class hierarchy (root-class first
// or self-first, per the parser's own convention) and overlays each
// class's instance-field exclusions into a single fieldName -> Exclusion
// map, per spec section 4.3 step 2. Later classes in the hierarchy slice
// override earlier ones on key collision.
func (idx *ExclusionIndex) MergedInstanceFieldExclusions(hierarchy []ClassInfo) map[string]Exclusion {
	merged := make(map[string]Exclusion)
	for _, class := range hierarchy {
		fields, ok := idx.instanceFields[class.ClassName]
		if !ok {
			continue
		}
		for _, name := range class.FieldNames {
			if e, ok := fields[name]; ok {
				merged[name] = e
			}
		}
	}
	return merged
}
