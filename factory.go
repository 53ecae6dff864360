package topology

import (
	"context"
	"reflect"
	"sync"
)

// FactoryState is the lifecycle of one Factory instance, per spec.md §3:
// Uninitialized -> Unprocessed -> Processed | Inserted.
type FactoryState int

const (
	FactoryUninitialized FactoryState = iota
	FactoryUnprocessed
	FactoryProcessed
	FactoryInserted
)

// Factory is a lazy, memoized producer of one Collection for one Event,
// keyed by (object type, tag). FactoryT is the implementation: user code
// supplies Process (and optionally Init/ChangeRun) through NewFactoryT,
// mirroring the teacher's adapter-function style (apply.go,
// adapt.go) rather than a deep inheritance hierarchy.
type Factory interface {
	ObjectType() string
	Tag() string
	Persistent() bool
	State() FactoryState

	// init runs at most once per factory instance over the process
	// lifetime (spec.md invariant 5), even across pauses/resumes.
	init() error
	// changeRun runs whenever the observed run number changes for this
	// factory instance.
	changeRun(runNumber uint32) error
	// process runs at most once per event (spec.md invariant 4) and
	// populates the factory's internal collection.
	process(ctx context.Context, ev *Event) error
	// reset clears the factory's collection (unless Persistent) and
	// returns its state to Unprocessed, for reuse across pool cycles.
	reset()
	// broken reports whether Init failed, permanently disabling the
	// factory (spec.md §4.1: "Exceptions during Init render that
	// factory permanently broken").
	broken() error

	// rawItems returns the produced collection as []T type-erased to any,
	// for FactorySet.Get[T] to assert back to the concrete type.
	rawItems() any
	// setInserted bypasses process and stores items directly, marking
	// the factory Inserted (FactorySet.Insert).
	setInserted(items any)
	// upcastTo attempts the registered upcast to Base, identified by its
	// reflect.Type; ok is false if no upcast was registered for Base.
	upcastTo(base reflect.Type) (result any, ok bool)
}

// FactoryT is the generic Factory implementation user code builds via
// NewFactoryT. T is the plain-old-data record type the factory produces.
type FactoryT[T any] struct { //nolint:govet // field order favors readability, matches teacher convention
	objectType string
	tag        Name
	persistent bool

	mu          sync.Mutex
	state       FactoryState
	items       []T
	initErr     error
	initDone    bool
	lastRun     uint32
	haveRun     bool
	processOnce *sync.Once
	processErr  error

	initFn      func() error
	changeRunFn func(runNumber uint32) error
	processFn   func(ctx context.Context, ev *Event) ([]T, error)

	upcasts map[reflect.Type]func([]T) any
}

// FactoryOption configures a FactoryT at construction.
type FactoryOption[T any] func(*FactoryT[T])

// WithPersistent marks the factory's collection as surviving event reset
// (spec.md §4.1's "unless marked persistent").
func WithPersistent[T any](persistent bool) FactoryOption[T] {
	return func(f *FactoryT[T]) { f.persistent = persistent }
}

// WithInit registers the Init callback, run at most once per factory
// instance over the process lifetime.
func WithInit[T any](fn func() error) FactoryOption[T] {
	return func(f *FactoryT[T]) { f.initFn = fn }
}

// WithChangeRun registers the ChangeRun callback, run whenever the
// observed run number changes.
func WithChangeRun[T any](fn func(runNumber uint32) error) FactoryOption[T] {
	return func(f *FactoryT[T]) { f.changeRunFn = fn }
}

// NewFactoryT builds a Factory producing []T for the given (object type,
// tag), backed by process, the user's per-event production callback.
func NewFactoryT[T any](objectType, tag Name, process func(ctx context.Context, ev *Event) ([]T, error), opts ...FactoryOption[T]) *FactoryT[T] {
	f := &FactoryT[T]{
		objectType:  objectType,
		tag:         tag,
		state:       FactoryUninitialized,
		processFn:   process,
		upcasts:     make(map[reflect.Type]func([]T) any),
		processOnce: &sync.Once{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RegisterUpcast declares that this factory's T can be projected to Base,
// implementing the "templated GetAs<Base>() upcast table" pattern of
// spec.md §9 as an explicit function registered at construction rather
// than a virtual-inheritance cast.
func RegisterUpcast[T, Base any](f *FactoryT[T], fn func(T) Base) {
	baseType := reflect.TypeOf((*Base)(nil)).Elem()
	f.upcasts[baseType] = func(items []T) any {
		out := make([]Base, len(items))
		for i, it := range items {
			out[i] = fn(it)
		}
		return out
	}
}

func (f *FactoryT[T]) ObjectType() string    { return f.objectType }
func (f *FactoryT[T]) Tag() string           { return f.tag }
func (f *FactoryT[T]) Persistent() bool      { return f.persistent }
func (f *FactoryT[T]) State() FactoryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *FactoryT[T]) broken() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initErr
}

func (f *FactoryT[T]) init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initDone {
		return f.initErr
	}
	f.initDone = true
	if f.initFn != nil {
		f.initErr = f.initFn()
	}
	if f.initErr == nil && f.state == FactoryUninitialized {
		f.state = FactoryUnprocessed
	}
	return f.initErr
}

func (f *FactoryT[T]) changeRun(runNumber uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.haveRun && f.lastRun == runNumber {
		return nil
	}
	f.haveRun = true
	f.lastRun = runNumber
	if f.changeRunFn != nil {
		return f.changeRunFn(runNumber)
	}
	return nil
}

// process runs processFn at most once per (event-instance, factory-instance)
// — spec.md invariant 4 — even when Get is called concurrently from
// multiple goroutines for the same event: the sync.Once below admits
// exactly one caller into processFn, and every other caller blocks on it
// rather than racing a second invocation past the old check-then-act gate.
func (f *FactoryT[T]) process(ctx context.Context, ev *Event) error {
	f.mu.Lock()
	if f.state == FactoryInserted {
		f.mu.Unlock()
		return nil
	}
	once := f.processOnce
	f.mu.Unlock()

	once.Do(func() {
		items, err := f.processFn(ctx, ev)
		f.mu.Lock()
		defer f.mu.Unlock()
		if err != nil {
			f.processErr = err
			return
		}
		f.items = items
		f.state = FactoryProcessed
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processErr
}

func (f *FactoryT[T]) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.persistent {
		return
	}
	f.items = nil
	f.state = FactoryUnprocessed
	f.processOnce = &sync.Once{}
	f.processErr = nil
}

func (f *FactoryT[T]) rawItems() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items
}

func (f *FactoryT[T]) setInserted(items any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items.([]T)
	f.state = FactoryInserted
}

func (f *FactoryT[T]) upcastTo(base reflect.Type) (any, bool) {
	f.mu.Lock()
	fn, ok := f.upcasts[base]
	items := f.items
	f.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fn(items), true
}
