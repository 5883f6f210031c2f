// Package factory implements the per-event lazy, memoized computation
// graph (FactorySet) described in spec.md §4.1: a typed producer graph
// keyed by (type, tag), where each Factory's output is computed at most
// once per event and re-entrant lookups recurse through the graph.
package factory

// Factory is a single typed producer in the graph. Implementations embed
// Base for the flag bookkeeping (Persistent/NotObjectOwner/Regenerate) and
// override Process to compute their output, calling ctx.Get to pull
// upstream dependencies.
type Factory interface {
	// TypeName identifies the payload type this factory produces.
	TypeName() string
	// Tag distinguishes multiple producers of the same TypeName.
	Tag() string

	// Init runs exactly once per FactorySet lifetime, before the first
	// Process call.
	Init() error
	// ChangeRun runs whenever the event's run number differs from the
	// last run number this factory observed.
	ChangeRun(runNumber int64) error
	// Process computes this factory's output for the current event,
	// storing it via ctx.Set. It may call ctx.Get to pull dependencies,
	// which recurses into other factories in the same FactorySet.
	Process(ctx *Context) error

	// Persistent reports whether this factory's output survives
	// FactorySet.Clear (the factory itself decides when to regenerate).
	Persistent() bool
	// NotObjectOwner reports whether this factory's output is owned
	// elsewhere; clearing drops the reference without attempting cleanup.
	NotObjectOwner() bool
	// Regenerate reports whether CreateAndGet should always invoke
	// Process, even if the bundle already holds inserted/created data.
	Regenerate() bool
}

// Base implements the flag bookkeeping shared by every factory so
// concrete factories only need to override Process (and, when needed,
// Init/ChangeRun). Embed it by value and call the With* setters from a
// constructor, mirroring the teacher's functional-option constructors.
type Base struct {
	typeName string
	tag      string

	persistent     bool
	notObjectOwner bool
	regenerate     bool
}

// NewBase constructs the shared Factory bookkeeping for a (typeName, tag)
// pair.
func NewBase(typeName, tag string) Base {
	return Base{typeName: typeName, tag: tag} //nolint:exhaustruct
}

func (b *Base) TypeName() string { return b.typeName }
func (b *Base) Tag() string      { return b.tag }

func (b *Base) Persistent() bool     { return b.persistent }
func (b *Base) NotObjectOwner() bool { return b.notObjectOwner }
func (b *Base) Regenerate() bool     { return b.regenerate }

// SetPersistentFlag toggles whether this factory's output survives Clear.
func (b *Base) SetPersistentFlag(v bool) { b.persistent = v }

// SetNotOwnerFlag toggles whether Clear should avoid treating the output
// as owned by the FactorySet.
func (b *Base) SetNotOwnerFlag(v bool) { b.notObjectOwner = v }

// SetRegenerateFlag toggles whether CreateAndGet always reruns Process.
func (b *Base) SetRegenerateFlag(v bool) { b.regenerate = v }

// Init is the default no-op Init hook; factories with setup work override it.
func (b *Base) Init() error { return nil }

// ChangeRun is the default no-op ChangeRun hook; factories with run-scoped
// state override it.
func (b *Base) ChangeRun(int64) error { return nil }
