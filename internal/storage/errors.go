package storage

// Class groups backend errors by how the loader reacts to them.
type Class int

const (
	// ClassOther is any error the loader cannot absorb. It is fatal.
	ClassOther Class = iota
	// ClassConstraint is a unique, primary key or foreign key violation.
	ClassConstraint
	// ClassBusy is a transient lock or deadlock error worth retrying.
	ClassBusy
)

func (c Class) String() string {
	switch c {
	case ClassConstraint:
		return "constraint"
	case ClassBusy:
		return "busy"
	default:
		return "other"
	}
}
