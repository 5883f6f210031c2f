// Package databundle defines the typed, per-event data slots a FactorySet
// manages: one Databundle per (type, tag), holding the factory's output and
// its ownership/lifecycle status.
package databundle

// Status tracks a Databundle's lifecycle within a single event, mirroring
// JANA2's JFactory creation_status enum.
type Status int

const (
	// NotCreatedYet is the initial state before any access.
	NotCreatedYet Status = iota
	// Unprocessed marks a bundle whose factory's Init ran but whose
	// Process has not yet produced data for the current event.
	Unprocessed
	// Created marks a bundle whose factory's Process populated it.
	Created
	// Inserted marks a bundle whose data arrived via an external Insert
	// call rather than the factory's own Process.
	Inserted
	// InsertedViaGetObjects marks a bundle populated by a legacy-style
	// GetObjects callback rather than Process.
	InsertedViaGetObjects
	// NeverCreated marks a bundle whose factory declined to produce data
	// for this event (e.g. no matching objects upstream).
	NeverCreated
)

func (s Status) String() string {
	switch s {
	case NotCreatedYet:
		return "not_created_yet"
	case Unprocessed:
		return "unprocessed"
	case Created:
		return "created"
	case Inserted:
		return "inserted"
	case InsertedViaGetObjects:
		return "inserted_via_get_objects"
	case NeverCreated:
		return "never_created"
	default:
		return "unknown"
	}
}

// Databundle holds one factory's typed output for the current event, plus
// the ownership flags that drive the FactorySet clearing policy.
type Databundle struct {
	// TypeName is the Go type name of the payload (e.g. "main.ClusterSet").
	TypeName string
	// Tag distinguishes multiple producers of the same type.
	Tag string

	// Persistent bundles survive FactorySet.Clear (they are not reset
	// between events; the factory itself decides when to regenerate).
	Persistent bool
	// NotOwner bundles hold data the FactorySet does not own (e.g.
	// inserted from outside); clearing must not attempt to free it.
	NotOwner bool

	status  Status
	payload any
}

// New constructs an empty, not-yet-created Databundle for the given
// type/tag pair.
func New(typeName, tag string) *Databundle {
	return &Databundle{ //nolint:exhaustruct
		TypeName: typeName,
		Tag:      tag,
		status:   NotCreatedYet,
	}
}

// Status reports the bundle's current lifecycle state.
func (d *Databundle) Status() Status { return d.status }

// Payload returns the bundle's current data and whether it has been set.
func (d *Databundle) Payload() (any, bool) {
	return d.payload, d.status == Created || d.status == Inserted || d.status == InsertedViaGetObjects
}

// SetCreated stores data produced by the factory's own Process call.
func (d *Databundle) SetCreated(payload any) {
	d.payload = payload
	d.status = Created
}

// SetInserted stores data supplied externally via Insert.
func (d *Databundle) SetInserted(payload any, viaGetObjects bool) {
	d.payload = payload
	if viaGetObjects {
		d.status = InsertedViaGetObjects
	} else {
		d.status = Inserted
	}
}

// MarkUnprocessed transitions a bundle from NotCreatedYet to Unprocessed,
// recording that Init ran but Process has not yet executed this event.
func (d *Databundle) MarkUnprocessed() {
	if d.status == NotCreatedYet {
		d.status = Unprocessed
	}
}

// MarkNeverCreated records that the factory ran but declined to produce
// data for this event.
func (d *Databundle) MarkNeverCreated() {
	d.payload = nil
	d.status = NeverCreated
}

// Clear resets the bundle back to NotCreatedYet per the clearing policy
// table (spec.md §4.1): persistent bundles are never cleared automatically,
// and not-owner bundles are cleared without touching the payload's
// lifetime (the owner outside the FactorySet is responsible for it).
//
//	persistent | not_owner | behavior
//	false      | false     | payload dropped, status reset
//	false      | true      | reference dropped, status reset (no free)
//	true       | false     | no-op
//	true       | true      | no-op
func (d *Databundle) Clear() {
	if d.Persistent {
		return
	}
	d.payload = nil
	d.status = NotCreatedYet
}
