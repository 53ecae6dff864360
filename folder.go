package topology

import (
	"context"
	"sync"
)

// Folder is the user-supplied callback contract joining a group of
// children back into their parent (spec.md §4.4). children are presented
// in unfold order (invariant 6); Fold must not reorder them.
type Folder interface {
	Fold(ctx context.Context, children []*Event, parent *Event) (*Event, error)
}

// FolderArrow buffers children by parent until it observes that parent on
// its parentQueue — the group terminator forwarded by the paired
// UnfolderArrow when it released that parent (spec.md §4.4's "sentinel"
// resolution; DESIGN.md). Buffering per parent, rather than a counted
// "expect N children" contract, lets the unfolder vary the child count
// per parent without the folder needing to know it in advance.
type FolderArrow struct {
	arrowBase
	folder Folder

	childQueue  *Queue
	parentQueue *Queue
	childPool   *Pool

	parentOutQueue *Queue // forward target for the joined parent
	parentPool     *Pool  // release target when this fold is terminal

	mu      sync.Mutex
	pending map[*Event][]*Event
}

// NewFolderArrow constructs a FolderArrow. Exactly one of parentOutQueue
// or parentPool should be non-nil, mirroring UnfolderArrow's wiring.
func NewFolderArrow(name Name, parentLvl Level, folder Folder, childQueue, parentQueue *Queue, childPool *Pool, parentOutQueue *Queue, parentPool *Pool) *FolderArrow {
	ports := []Port{
		{Kind: PortQueueIn, Queue: childQueue},
		{Kind: PortQueueIn, Queue: parentQueue},
		{Kind: PortPool, Pool: childPool},
	}
	if parentOutQueue != nil {
		ports = append(ports, Port{Kind: PortQueueOut, Queue: parentOutQueue})
	}
	if parentPool != nil {
		ports = append(ports, Port{Kind: PortPool, Pool: parentPool})
	}
	return &FolderArrow{
		arrowBase:      newArrowBase(name, parentLvl, false, 1, ports),
		folder:         folder,
		childQueue:     childQueue,
		parentQueue:    parentQueue,
		childPool:      childPool,
		parentOutQueue: parentOutQueue,
		parentPool:     parentPool,
		pending:        make(map[*Event][]*Event),
	}
}

// hasInput reports whether either the child queue or the parent queue
// looks poppable at loc — either alone lets Fire make progress (draining
// children into the pending map, or resolving a buffered group once its
// terminator parent arrives).
func (f *FolderArrow) hasInput(loc int) bool {
	return queueHasInput(f.childQueue, loc) || queueHasInput(f.parentQueue, loc)
}

// maxOutputsPerFire is 1: one Fire call folds at most one parent group.
func (f *FolderArrow) maxOutputsPerFire() int { return 1 }

// Fire drains available children into the per-parent buffer, then checks
// for a terminator parent; if one is present, folds its buffered children
// and routes the joined parent and retired children.
func (f *FolderArrow) Fire(ctx context.Context, _ *Event, outputs *OutputBuffer) (FireStatus, error) {
	return f.traceFire(ctx, func(ctx context.Context) (FireStatus, error) {
		loc := locationFromContext(ctx)
		children, _ := f.childQueue.Pop(f.chunkSize, loc)
		if len(children) > 0 {
			f.mu.Lock()
			for _, c := range children {
				p := c.Parent()
				f.pending[p] = append(f.pending[p], c)
			}
			f.mu.Unlock()
		}

		parents, status := f.parentQueue.Pop(1, loc)
		if len(parents) == 0 {
			if len(children) > 0 {
				return KeepGoing, nil
			}
			if status == StatusCongested {
				return ComeBackLater, nil
			}
			return ComeBackLater, nil
		}
		parent := parents[0]

		f.mu.Lock()
		group := f.pending[parent]
		delete(f.pending, parent)
		f.mu.Unlock()

		joined, err := f.folder.Fold(ctx, group, parent)
		if err != nil {
			return FireError, WithContext(err, "", f.name, "", KindUserException)
		}
		if joined == nil {
			joined = parent
		}

		// Each folded child goes out on port 2 (childPool) so the engine
		// releases it and counts its retirement the same way a terminal
		// tap would.
		for _, c := range group {
			outputs.Emit(c, 2)
		}

		// The joined parent goes out on port 3, the slot NewFolderArrow
		// binds to whichever of parentOutQueue/parentPool is non-nil —
		// the engine routes it under its own lock, same as every other
		// arrow's output (spec.md §4.6 step 1), so eventsDone and the
		// EventRetired hook stay accurate for a terminal fold too.
		outputs.Emit(joined, 3)
		return KeepGoing, nil
	})
}
