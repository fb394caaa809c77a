package adminops

// EntityTracker maps each entity type to the identifier most recently
// produced by a mutating call in the current turn, and keeps the full
// ordered mutation log for the synthesis guard. Turn-scoped; never shared
// across sessions.
type EntityTracker struct {
	last      map[string]string
	order     []string // entity IDs in production order, newest last
	mutations []MutationRecord
}

// NewEntityTracker creates an empty tracker.
func NewEntityTracker() *EntityTracker {
	return &EntityTracker{last: make(map[string]string)}
}

// Record notes a completed mutation.
func (t *EntityTracker) Record(m MutationRecord) {
	t.mutations = append(t.mutations, m)
	if m.EntityID != "" {
		t.last[m.EntityType] = m.EntityID
		t.order = append(t.order, m.EntityID)
	}
}

// Lookup returns the most recent identifier of the given entity type.
func (t *EntityTracker) Lookup(entityType string) (string, bool) {
	id, ok := t.last[entityType]
	return id, ok
}

// LastAny returns the most recently produced identifier of any type.
func (t *EntityTracker) LastAny() (string, bool) {
	if len(t.order) == 0 {
		return "", false
	}
	return t.order[len(t.order)-1], true
}

// Mutations returns the ordered mutation log.
func (t *EntityTracker) Mutations() []MutationRecord {
	return t.mutations
}

// HasVerb reports whether any recorded mutation used the given verb.
func (t *EntityTracker) HasVerb(verb string) bool {
	for _, m := range t.mutations {
		if m.Verb == verb {
			return true
		}
	}
	return false
}
