package chainstate

// Diffable is satisfied by every write primitive a WriteBatch can track: it can
// report whether it changed since the last commit, and accept its current value as
// the new base.
type Diffable interface {
	Changed() bool
	Commit()
}

// WriteBatch is a named compound of DaRegister/DaCounter/DaMap writes. Its defining
// invariant (spec §4.1) is that applying an empty write batch — one where every
// tracked field is unchanged — is the identity transformation: no commit, no diff
// emitted, no downstream effect.
type WriteBatch struct {
	fields map[string]Diffable
	order  []string
}

// NewWriteBatch returns an empty batch.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{fields: make(map[string]Diffable)}
}

// Track registers a named field so the batch can report on and commit it. Field
// names are only used for diagnostics; order is preserved for deterministic
// iteration.
func (b *WriteBatch) Track(name string, field Diffable) {
	if _, exists := b.fields[name]; !exists {
		b.order = append(b.order, name)
	}
	b.fields[name] = field
}

// IsEmpty reports whether every tracked field is unchanged — the batch would be the
// identity if applied.
func (b *WriteBatch) IsEmpty() bool {
	for _, name := range b.order {
		if b.fields[name].Changed() {
			return false
		}
	}
	return true
}

// ChangedFields returns the names of fields that changed since the last commit, in
// registration order.
func (b *WriteBatch) ChangedFields() []string {
	var changed []string
	for _, name := range b.order {
		if b.fields[name].Changed() {
			changed = append(changed, name)
		}
	}
	return changed
}

// Commit commits every tracked field. Committing an already-empty batch is itself a
// no-op (idempotent-diff invariant): calling Commit twice in a row without an
// intervening mutation produces the same state both times.
func (b *WriteBatch) Commit() {
	for _, name := range b.order {
		b.fields[name].Commit()
	}
}
