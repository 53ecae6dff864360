package topology

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
)

// UnfoldStatus is the result of one Unfolder.Unfold call (spec.md §4.4).
type UnfoldStatus int

const (
	// KeepParent means more children remain for the current parent.
	KeepParent UnfoldStatus = iota
	// NextParent means this was the last child for the current parent;
	// the arrow releases it and advances to the next parent on its next
	// Fire.
	NextParent
	// UnfoldFinished means the unfolder will not unfold further parents
	// at all — the current parent (if any) is released unconsumed.
	UnfoldFinished
)

// Unfolder is the user-supplied callback contract bridging a parent level
// to a child level (spec.md §4.4). Preprocess may be called zero, one, or
// many times per parent to warm caches concurrently with other
// preprocesses — Unfold must be self-sufficient and never assume
// Preprocess ran (spec.md §9, Open Question).
type Unfolder interface {
	Preprocess(ctx context.Context, parent *Event) error
	Unfold(ctx context.Context, parent, child *Event, itemIndex int) (UnfoldStatus, error)
}

// UnfolderArrow holds exactly one parent on its internal slot (spec.md
// §4.4) between Fire calls, drawing children from the child level's pool
// and emitting them to the child queue in consecutive, monotonically
// numbered order (invariant 6). When the unfolder returns NextParent, the
// retained parent is released: either straight back to its own pool, or
// forwarded to a paired FolderArrow's parent queue as the group terminator
// (DESIGN.md, unfold/fold wiring).
type UnfolderArrow struct {
	arrowBase
	unfolder Unfolder

	parentQueue *Queue
	childPool   *Pool
	childQueue  *Queue

	parentPool     *Pool  // release target when no folder is paired
	parentOutQueue *Queue // forward target when a folder is paired

	mu        sync.Mutex
	curParent *Event
	itemIndex int
	subNum    uint64
}

// NewUnfolderArrow constructs an UnfolderArrow. Exactly one of parentPool
// or parentOutQueue should be non-nil: parentPool for an unpaired
// unfolder, parentOutQueue when a FolderArrow downstream expects the
// retired parent as its group terminator.
func NewUnfolderArrow(name Name, parentLvl, childLvl Level, unfolder Unfolder, parentQueue *Queue, childPool *Pool, childQueue *Queue, parentPool *Pool, parentOutQueue *Queue) *UnfolderArrow {
	ports := []Port{
		{Kind: PortQueueIn, Queue: parentQueue},
		{Kind: PortPool, Pool: childPool},
		{Kind: PortQueueOut, Queue: childQueue},
	}
	if parentPool != nil {
		ports = append(ports, Port{Kind: PortPool, Pool: parentPool})
	}
	if parentOutQueue != nil {
		ports = append(ports, Port{Kind: PortQueueOut, Queue: parentOutQueue})
	}
	return &UnfolderArrow{
		arrowBase:      newArrowBase(name, childLvl, false, 1, ports),
		unfolder:       unfolder,
		parentQueue:    parentQueue,
		childPool:      childPool,
		childQueue:     childQueue,
		parentPool:     parentPool,
		parentOutQueue: parentOutQueue,
	}
}

// hasInput reports whether this arrow can make progress at loc: either it
// already retains a parent mid-unfold (curParent != nil, independent of
// loc — the retaining worker may differ from the polling one, but any
// worker may continue it since the arrow is non-parallel), or a fresh
// parent is waiting on parentQueue.
func (u *UnfolderArrow) hasInput(loc int) bool {
	u.mu.Lock()
	retained := u.curParent != nil
	u.mu.Unlock()
	if retained {
		return true
	}
	return queueHasInput(u.parentQueue, loc)
}

// maxOutputsPerFire is 1: one Fire call emits at most one child to
// childQueue (port 2). The engine reserves that many slots on every
// queue-backed output port, so when a folder is paired parentOutQueue
// (port 3) also gets one slot per fire; a parentPool needs no reservation.
func (u *UnfolderArrow) maxOutputsPerFire() int { return 1 }

// Fire advances one (parent, item_index) step: acquiring a new parent if
// none is retained, drawing one fresh child, invoking Unfold, and routing
// the child and (on NextParent/UnfoldFinished) the parent accordingly.
func (u *UnfolderArrow) Fire(ctx context.Context, _ *Event, outputs *OutputBuffer) (FireStatus, error) {
	return u.traceFire(ctx, func(ctx context.Context) (FireStatus, error) {
		loc := locationFromContext(ctx)
		u.mu.Lock()
		if u.curParent == nil {
			parents, status := u.parentQueue.Pop(1, loc)
			if len(parents) == 0 {
				u.mu.Unlock()
				if status == StatusCongested {
					return ComeBackLater, nil
				}
				return ComeBackLater, nil
			}
			u.curParent = parents[0]
			u.itemIndex = 0
		}
		parent := u.curParent
		itemIndex := u.itemIndex
		u.mu.Unlock()

		children, status := u.childPool.Acquire(ctx, 1, loc)
		if len(children) == 0 {
			_ = status
			return ComeBackLater, nil
		}
		child := children[0]
		child.SetParent(parent)
		child.SetNumber(atomic.AddUint64(&u.subNum, 1))

		ufStatus, err := u.unfolder.Unfold(ctx, parent, child, itemIndex)
		if err != nil {
			u.childPool.Release(ctx, children, loc)
			return FireError, WithContext(err, "", u.name, "", KindUserException)
		}

		switch ufStatus {
		case KeepParent:
			// Port 2 is childQueue (PortQueueOut); port 1 is childPool,
			// where the child came from, not where it goes.
			outputs.Emit(child, 2)
			u.mu.Lock()
			u.itemIndex++
			u.mu.Unlock()
			return KeepGoing, nil

		case NextParent:
			outputs.Emit(child, 2)
			u.releaseParent(ctx, parent, outputs)
			return KeepGoing, nil

		default: // UnfoldFinished
			u.childPool.Release(ctx, children, loc)
			u.releaseParent(ctx, parent, outputs)
			u.markFinished()
			return Finished, nil
		}
	})
}

// releaseParent retires the fully-unfolded parent by handing it to the
// output buffer on port 3 — the slot NewUnfolderArrow binds to whichever
// of parentPool/parentOutQueue is non-nil — so the engine routes it under
// its own lock like every other output (spec.md §4.6 step 1).
func (u *UnfolderArrow) releaseParent(ctx context.Context, parent *Event, outputs *OutputBuffer) {
	u.mu.Lock()
	u.curParent = nil
	u.itemIndex = 0
	u.mu.Unlock()

	capitan.Info(ctx, SignalArrowFinished,
		FieldName.Field(u.name),
		FieldEventNumber.Field(int(parent.Number())),
	)
	outputs.Emit(parent, 3)
}
