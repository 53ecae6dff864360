// Package testsupport provides configurable mock SourceBehavior,
// ProcessorBehavior, Unfolder, and Folder implementations for exercising
// a topology end to end, adapted from the call-tracking/configurable-
// return mock pattern the teacher's testing package uses for
// pipz.Chainable (testing/helpers.go's MockProcessor).
package testsupport

import (
	"context"
	"sync"
	"sync/atomic"

	topology "github.com/kestrelphysics/topology"
)

// MockSource emits up to Limit events (0 means unlimited) and then
// reports Finished. EmitFunc, if set, runs against every event that passes
// the limit check.
type MockSource struct {
	Limit    int
	EmitFunc func(ctx context.Context, ev *topology.Event) error

	emitted atomic.Int64
}

// NewMockSource returns a MockSource that emits exactly limit events
// (0 = unlimited).
func NewMockSource(limit int) *MockSource {
	return &MockSource{Limit: limit}
}

// Emit implements topology.SourceBehavior.
func (s *MockSource) Emit(ctx context.Context, ev *topology.Event) (topology.FireStatus, error) {
	n := s.emitted.Add(1)
	if s.Limit > 0 && n > int64(s.Limit) {
		return topology.Finished, nil
	}
	if s.EmitFunc != nil {
		if err := s.EmitFunc(ctx, ev); err != nil {
			return topology.FireError, err
		}
	}
	return topology.KeepGoing, nil
}

// Emitted returns how many events this source has emitted so far.
func (s *MockSource) Emitted() int64 {
	n := s.emitted.Load()
	if s.Limit > 0 && n > int64(s.Limit) {
		return int64(s.Limit)
	}
	return n
}

// MockProcessor is a configurable topology.ProcessorBehavior that counts
// calls and records the events it has seen, in the style of the teacher's
// MockProcessor[T].
type MockProcessor struct {
	Fn  func(ctx context.Context, ev *topology.Event) error
	Err error

	mu    sync.Mutex
	calls int64
	seen  []uint64
}

// NewMockProcessor returns an empty MockProcessor.
func NewMockProcessor() *MockProcessor { return &MockProcessor{} }

// WithError configures every call to fail with err.
func (p *MockProcessor) WithError(err error) *MockProcessor {
	p.Err = err
	return p
}

// WithFunc configures the behavior run on each event.
func (p *MockProcessor) WithFunc(fn func(ctx context.Context, ev *topology.Event) error) *MockProcessor {
	p.Fn = fn
	return p
}

// Process implements topology.ProcessorBehavior.
func (p *MockProcessor) Process(ctx context.Context, ev *topology.Event) error {
	p.mu.Lock()
	p.calls++
	p.seen = append(p.seen, ev.Number())
	p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	if p.Fn != nil {
		return p.Fn(ctx, ev)
	}
	return nil
}

// CallCount returns how many times Process has run.
func (p *MockProcessor) CallCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Seen returns the event numbers Process has observed, in call order.
func (p *MockProcessor) Seen() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, len(p.seen))
	copy(out, p.seen)
	return out
}

// MockUnfolder unfolds each parent into exactly ChildrenPerParent children
// (default 1) unless UnfoldFunc is set.
type MockUnfolder struct {
	ChildrenPerParent int
	UnfoldFunc        func(ctx context.Context, parent, child *topology.Event, itemIndex int) (topology.UnfoldStatus, error)

	preprocessCalls atomic.Int64
}

// NewMockUnfolder returns a MockUnfolder producing childrenPerParent
// children for every parent.
func NewMockUnfolder(childrenPerParent int) *MockUnfolder {
	if childrenPerParent < 1 {
		childrenPerParent = 1
	}
	return &MockUnfolder{ChildrenPerParent: childrenPerParent}
}

// Preprocess implements topology.Unfolder.
func (u *MockUnfolder) Preprocess(_ context.Context, _ *topology.Event) error {
	u.preprocessCalls.Add(1)
	return nil
}

// PreprocessCalls returns how many times Preprocess has run.
func (u *MockUnfolder) PreprocessCalls() int64 { return u.preprocessCalls.Load() }

// Unfold implements topology.Unfolder.
func (u *MockUnfolder) Unfold(ctx context.Context, parent, child *topology.Event, itemIndex int) (topology.UnfoldStatus, error) {
	if u.UnfoldFunc != nil {
		return u.UnfoldFunc(ctx, parent, child, itemIndex)
	}
	if itemIndex >= u.ChildrenPerParent-1 {
		return topology.NextParent, nil
	}
	return topology.KeepParent, nil
}

// MockFolder joins children back to the parent with FoldFunc, or simply
// returns the parent unchanged if FoldFunc is nil.
type MockFolder struct {
	FoldFunc func(ctx context.Context, children []*topology.Event, parent *topology.Event) (*topology.Event, error)

	calls atomic.Int64
}

// NewMockFolder returns an empty MockFolder.
func NewMockFolder() *MockFolder { return &MockFolder{} }

// Calls returns how many times Fold has run.
func (f *MockFolder) Calls() int64 { return f.calls.Load() }

// Fold implements topology.Folder.
func (f *MockFolder) Fold(ctx context.Context, children []*topology.Event, parent *topology.Event) (*topology.Event, error) {
	f.calls.Add(1)
	if f.FoldFunc != nil {
		return f.FoldFunc(ctx, children, parent)
	}
	return parent, nil
}
