package topology

import (
	"context"
	"reflect"
	"sync"
)

// typeNameCache avoids repeated reflection when computing the object-type
// half of a FactorySet key, the same caching shape as the teacher's
// typeName[T]() in cache.go.
var (
	typeNameCache   = make(map[reflect.Type]string)
	typeNameCacheMu sync.RWMutex
)

func typeKey[T any]() string {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	typeNameCacheMu.RLock()
	if name, ok := typeNameCache[typ]; ok {
		typeNameCacheMu.RUnlock()
		return name
	}
	typeNameCacheMu.RUnlock()

	typeNameCacheMu.Lock()
	defer typeNameCacheMu.Unlock()
	if name, ok := typeNameCache[typ]; ok {
		return name
	}
	name := typ.String()
	typeNameCache[typ] = name
	return name
}

// FactorySet is the mapping (object-type, tag) -> Factory owned by an
// Event (spec.md §3, §4.1). Factories are attached with Register; the
// Builder attaches none. FactorySet itself only manages lookup, on-demand
// processing, and reset.
type FactorySet struct {
	mu        sync.Mutex
	factories map[collectionKey]Factory
	arrow     Name // not set or read; Get's errors carry object type and tag only
	plugin    Name
}

// NewFactorySet returns an empty FactorySet. Events create one at
// construction and reuse it for the lifetime of the Event's pool slot.
func NewFactorySet() *FactorySet {
	return &FactorySet{factories: make(map[collectionKey]Factory)}
}

// Register attaches a Factory under its own (ObjectType, Tag), replacing
// any previously registered factory for that key. Insert calls it; the
// Builder does not.
func (fs *FactorySet) Register(f Factory) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.factories[collectionKey{objectType: f.ObjectType(), tag: f.Tag()}] = f
}

func (fs *FactorySet) lookup(objectType, tag string) (Factory, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.factories[collectionKey{objectType: objectType, tag: tag}]
	return f, ok
}

// Get triggers ChangeRun+Process on the backing factory for T (identified
// by its Go type and the given tag) if not yet processed for this event,
// and returns the cached collection thereafter (spec.md §4.1: "Get is
// idempotent"). Returns ErrFactoryNotFound if no factory is registered;
// user errors are re-raised tagged with the object type and tag; the plugin
// name is left empty.
func Get[T any](ctx context.Context, ev *Event, tag Name) ([]T, error) {
	objectType := typeKey[T]()
	f, ok := ev.Factories().lookup(objectType, tag)
	if !ok {
		return nil, &Error{
			Err:  ErrFactoryNotFound,
			Tag:  tag,
			Kind: KindUserException,
			Path: []Name{"FactorySet.Get", objectType, tag},
		}
	}
	if brokenErr := f.broken(); brokenErr != nil {
		return nil, WithContext(brokenErr, "", objectType, tag, KindUserException)
	}
	if err := f.init(); err != nil {
		return nil, WithContext(err, "", objectType, tag, KindUserException)
	}
	if err := f.changeRun(ev.RunNumber()); err != nil {
		return nil, WithContext(err, "", objectType, tag, KindUserException)
	}
	if err := f.process(ctx, ev); err != nil {
		return nil, WithContext(err, "", objectType, tag, KindUserException)
	}
	raw := f.rawItems()
	items, _ := raw.([]T)
	return items, nil
}

// Insert bypasses the factory and stores items directly under (T, tag),
// marking the collection Inserted. Used by sources to seed an event with
// raw input data.
func Insert[T any](ev *Event, tag Name, items []T) {
	objectType := typeKey[T]()
	fs := ev.Factories()
	f, ok := fs.lookup(objectType, tag)
	if !ok {
		f = NewFactoryT[T](objectType, tag, func(context.Context, *Event) ([]T, error) {
			return nil, ErrFactoryNotFound
		})
		fs.Register(f)
	}
	f.setInserted(items)
}

// GetAs performs the polymorphic upcast described in spec.md §4.1/§9:
// returns the projection of objectType's factory onto Base if (and only
// if) that factory registered an upcast for Base via RegisterUpcast; an
// empty slice signals no conversion was offered, matching the spec's
// "returns empty if the factory did not declare the upcast".
func GetAs[Base any](ctx context.Context, ev *Event, objectType, tag Name) ([]Base, error) {
	f, ok := ev.Factories().lookup(objectType, tag)
	if !ok {
		return nil, nil
	}
	if err := f.init(); err != nil {
		return nil, WithContext(err, "", objectType, tag, KindUserException)
	}
	if err := f.process(ctx, ev); err != nil {
		return nil, WithContext(err, "", objectType, tag, KindUserException)
	}
	baseType := reflect.TypeOf((*Base)(nil)).Elem()
	raw, ok := f.upcastTo(baseType)
	if !ok {
		return nil, nil
	}
	items, _ := raw.([]Base)
	return items, nil
}

// Reset clears all non-persistent collections and resets factory states
// to Unprocessed (spec.md §4.1), called by the framework when an event is
// returned to its pool.
func (fs *FactorySet) Reset() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, f := range fs.factories {
		f.reset()
	}
}
