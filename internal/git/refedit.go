package git

// RefLog describes how a change interacts with the reference's log.
type RefLog int

const (
	// RefLogAndReference writes a reflog entry, if applicable, and changes the
	// reference itself.
	RefLogAndReference = RefLog(iota)
	// RefLogOnly writes a reflog entry but leaves the reference untouched.
	RefLogOnly
)

// Change is a requested modification of a single reference. It is either an
// Update or a Delete.
type Change interface {
	// PreviousValue returns the value the caller expects the reference to
	// have, or nil if there is no expectation.
	PreviousValue() *Target
}

// Update sets a reference to a new target.
type Update struct {
	// Previous is the value the caller believes is currently stored. If unset,
	// it is filled in with the value that is being overwritten while the
	// change is prepared. A peeled ZeroOID requires the reference to not
	// exist yet.
	Previous *Target
	// New is the target the reference shall point to.
	New Target
	// Log controls reflog handling for this update.
	Log RefLog
	// Message is recorded in the reflog entry.
	Message string
}

// PreviousValue implements Change.
func (u Update) PreviousValue() *Target { return u.Previous }

// Delete removes a reference.
type Delete struct {
	// Previous, if set, requires the reference to currently exist with this
	// value. A peeled ZeroOID only requires the reference to exist.
	Previous *Target
	// Log controls reflog handling for this deletion.
	Log RefLog
}

// PreviousValue implements Change.
func (d Delete) PreviousValue() *Target { return d.Previous }

// RefEdit identifies a reference and the change requested for it.
type RefEdit struct {
	Name   ReferenceName
	Change Change
}

// NewUpdateEdit is a convenience constructor for an update of name to target
// without an expected previous value.
func NewUpdateEdit(name ReferenceName, target Target) RefEdit {
	return RefEdit{Name: name, Change: Update{New: target}}
}

// NewDeleteEdit is a convenience constructor for an unconditional deletion.
func NewDeleteEdit(name ReferenceName) RefEdit {
	return RefEdit{Name: name, Change: Delete{}}
}

// RefEdits is a batch of reference edits.
type RefEdits []RefEdit

// FirstDuplicate returns the first name, in batch order, that is targeted by
// more than one edit.
func (edits RefEdits) FirstDuplicate() (ReferenceName, bool) {
	seen := make(map[ReferenceName]struct{}, len(edits))
	for _, edit := range edits {
		if _, ok := seen[edit.Name]; ok {
			return edit.Name, true
		}
		seen[edit.Name] = struct{}{}
	}
	return "", false
}
