package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/janaflow/core/internal/errs"
	"github.com/janaflow/core/internal/observability"
	"github.com/janaflow/core/pkg/databundle"
)

type key struct {
	typeName string
	tag      string
}

type entry struct {
	factory    Factory
	bundle     *databundle.Databundle
	initDone   bool
	lastRun    int64
	inProgress bool
}

// FactorySet is the per-event lazy, memoized computation graph: a map of
// (type, tag) to the Factory that produces it, plus the Databundle each
// factory's output is memoized into for the duration of one event.
type FactorySet struct {
	mu         sync.Mutex
	entries    map[key]*entry
	runNum     int64
	evtNum     int64
	getObjects GetObjectsFunc
}

// GetObjectsFunc lets an EventSource externally supply a factory's output
// for the current event, bypassing Process, the JANA2 "GetObjects" legacy
// insertion path (spec.md §3's creation_status table / original_source's
// InsertedViaGetObjects case).
type GetObjectsFunc func(typeName, tag string) (payload any, ok bool)

// NewFactorySet builds an empty graph. Factories are registered with Add
// before the first Get call.
func NewFactorySet() *FactorySet {
	return &FactorySet{entries: make(map[key]*entry)} //nolint:exhaustruct
}

// SetGetObjects wires the EventSource hook createAndGet consults before
// running a factory's own Process, for the current event only — the
// caller is expected to call SetEventContext/SetGetObjects once per event.
func (fs *FactorySet) SetGetObjects(fn GetObjectsFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.getObjects = fn
}

// Add registers a factory under its own (TypeName, Tag).
func (fs *FactorySet) Add(f Factory) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	k := key{typeName: f.TypeName(), tag: f.Tag()}
	fs.entries[k] = &entry{ //nolint:exhaustruct
		factory: f,
		bundle:  databundle.New(f.TypeName(), f.Tag()),
		lastRun: -1,
	}
}

// SetEventContext records the event/run numbers driving subsequent Get
// calls (ChangeRun is invoked when runNumber differs from the last value
// observed by a given factory).
func (fs *FactorySet) SetEventContext(eventNum, runNum int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.evtNum = eventNum
	fs.runNum = runNum
}

// Insert externally supplies a factory's output, bypassing Process. This
// is how an EventSource hands pre-made data to the graph.
func (fs *FactorySet) Insert(typeName, tag string, payload any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	e, ok := fs.entries[key{typeName: typeName, tag: tag}]
	if !ok {
		return errs.New(errs.CodeMissingFactory,
			errs.WithMessage("insert into unregistered factory"),
			errs.WithFactory(typeName, tag, ""))
	}
	e.bundle.SetInserted(payload, false)
	return nil
}

// Get fetches typeName/tag's output, lazily invoking Init/ChangeRun/Process
// as needed and memoizing the result for the rest of this event. Calling
// Get recursively (a factory's Process calling ctx.Get for a dependency)
// is supported and opens a nested call-graph span; calling into a factory
// that is already mid-Process (a cycle) returns an error instead of
// deadlocking.
func (fs *FactorySet) Get(ctx context.Context, typeName, tag string) (any, error) {
	fs.mu.Lock()
	e, ok := fs.entries[key{typeName: typeName, tag: tag}]
	evtNum, runNum := fs.evtNum, fs.runNum
	fs.mu.Unlock()
	if !ok {
		return nil, errs.New(errs.CodeMissingFactory,
			errs.WithMessage("no factory registered for type/tag"),
			errs.WithFactory(typeName, tag, ""))
	}

	spanCtx, span := observability.Tracer().Start(ctx, "factory.create_and_get")
	span.SetAttributes(observability.FactoryAttributes(typeName, tag, evtNum, runNum)...)
	defer span.End()

	return fs.createAndGet(spanCtx, e, evtNum, runNum)
}

func (fs *FactorySet) createAndGet(ctx context.Context, e *entry, evtNum, runNum int64) (payload any, err error) {
	fs.mu.Lock()
	if e.inProgress {
		fs.mu.Unlock()
		return nil, errs.New(errs.CodeRuntimeFactory,
			errs.WithMessage("circular factory dependency"),
			errs.WithFactory(e.factory.TypeName(), e.factory.Tag(), ""),
			errs.WithEvent(evtNum, runNum))
	}
	status := e.bundle.Status()
	if !e.factory.Regenerate() &&
		(status == databundle.Created || status == databundle.Inserted ||
			status == databundle.InsertedViaGetObjects || status == databundle.NeverCreated) {
		p, _ := e.bundle.Payload()
		fs.mu.Unlock()
		return p, nil
	}
	e.inProgress = true
	fs.mu.Unlock()
	defer func() {
		fs.mu.Lock()
		e.inProgress = false
		fs.mu.Unlock()
	}()

	if !e.initDone {
		if initErr := fs.callInit(e, evtNum, runNum); initErr != nil {
			return nil, initErr
		}
		e.initDone = true
		e.bundle.MarkUnprocessed()
	}

	if e.lastRun != runNum {
		if runErr := fs.callChangeRun(e, evtNum, runNum); runErr != nil {
			return nil, runErr
		}
		e.lastRun = runNum
	}

	fs.mu.Lock()
	getObjects := fs.getObjects
	fs.mu.Unlock()
	if getObjects != nil {
		if payload, ok := getObjects(e.factory.TypeName(), e.factory.Tag()); ok {
			e.bundle.SetInserted(payload, true)
			p, _ := e.bundle.Payload()
			return p, nil
		}
	}

	if procErr := fs.callProcess(ctx, e, evtNum, runNum); procErr != nil {
		return nil, procErr
	}

	p, has := e.bundle.Payload()
	if !has {
		e.bundle.MarkNeverCreated()
	}
	return p, nil
}

func (fs *FactorySet) callInit(e *entry, evtNum, runNum int64) (err error) {
	defer recoverAsError(&err, e, evtNum, runNum)
	if initErr := e.factory.Init(); initErr != nil {
		return errs.New(errs.CodeInitialization,
			errs.WithMessage(initErr.Error()),
			errs.WithCause(initErr),
			errs.WithFactory(e.factory.TypeName(), e.factory.Tag(), ""),
			errs.WithEvent(evtNum, runNum))
	}
	return nil
}

func (fs *FactorySet) callChangeRun(e *entry, evtNum, runNum int64) (err error) {
	defer recoverAsError(&err, e, evtNum, runNum)
	if runErr := e.factory.ChangeRun(runNum); runErr != nil {
		return errs.New(errs.CodeRuntimeFactory,
			errs.WithMessage(runErr.Error()),
			errs.WithCause(runErr),
			errs.WithFactory(e.factory.TypeName(), e.factory.Tag(), ""),
			errs.WithEvent(evtNum, runNum))
	}
	return nil
}

func (fs *FactorySet) callProcess(ctx context.Context, e *entry, evtNum, runNum int64) (err error) {
	defer recoverAsError(&err, e, evtNum, runNum)
	pctx := &Context{ctx: ctx, fs: fs, bundle: e.bundle, evtNum: evtNum, runNum: runNum}
	if procErr := e.factory.Process(pctx); procErr != nil {
		return errs.New(errs.CodeRuntimeFactory,
			errs.WithMessage(procErr.Error()),
			errs.WithCause(procErr),
			errs.WithFactory(e.factory.TypeName(), e.factory.Tag(), ""),
			errs.WithEvent(evtNum, runNum))
	}
	return nil
}

// recoverAsError turns a panicking Process/Init/ChangeRun into the
// UnknownException error code (spec.md §7) instead of crashing the worker.
func recoverAsError(errp *error, e *entry, evtNum, runNum int64) {
	if r := recover(); r != nil {
		*errp = errs.New(errs.CodeUnknown,
			errs.WithMessage(fmt.Sprintf("panic: %v", r)),
			errs.WithFactory(e.factory.TypeName(), e.factory.Tag(), ""),
			errs.WithEvent(evtNum, runNum))
	}
}

// Clear resets every non-persistent bundle back to NotCreatedYet, per the
// clearing policy table in spec.md §4.1, and rearms each factory so its
// Process runs again next time Get is called (Init/ChangeRun are not
// rearmed: they remain "already run" until a run-number transition or
// FactorySet replacement).
func (fs *FactorySet) Clear() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, e := range fs.entries {
		e.bundle.Persistent = e.factory.Persistent()
		e.bundle.NotOwner = e.factory.NotObjectOwner()
		e.bundle.Clear()
	}
}

// Factories returns the registered factories, for introspection/listing.
func (fs *FactorySet) Factories() []Factory {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]Factory, 0, len(fs.entries))
	for _, e := range fs.entries {
		out = append(out, e.factory)
	}
	return out
}

// Context is handed to Factory.Process: it exposes the current event/run
// numbers, lets the factory store its output, and lets it recursively
// pull upstream dependencies through the same FactorySet.
type Context struct {
	ctx    context.Context
	fs     *FactorySet
	bundle *databundle.Databundle
	evtNum int64
	runNum int64
}

// EventNumber returns the event number in play for this Process call.
func (c *Context) EventNumber() int64 { return c.evtNum }

// RunNumber returns the run number in play for this Process call.
func (c *Context) RunNumber() int64 { return c.runNum }

// Set stores this factory's output for the current event.
func (c *Context) Set(payload any) { c.bundle.SetCreated(payload) }

// Get recursively resolves another factory's output, memoized the same
// way the top-level Get call is.
func (c *Context) Get(typeName, tag string) (any, error) {
	return c.fs.Get(c.ctx, typeName, tag)
}
