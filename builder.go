package topology

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Tunables holds every parameter read at build time (spec.md §4.5's
// "Tunables from the parameter store"), resolved once from a ParamAccessor
// so the rest of the builder never touches the accessor directly.
type Tunables struct {
	NThreads           int
	EventPoolSize      int
	QueueThreshold     int
	SourceChunkSize    int
	ProcessorChunkSize int
	Stealing           bool
	Locality           Locality
	Timeout            time.Duration
	WarmupTimeout      time.Duration
	TickerInterval     time.Duration
	ShowTicker         bool
	NEvents            int
	NSkip              int
	StatusFName        string
}

// NewTunables resolves Tunables from p, defaulting each parameter it reads
// to the values the original gives them. ParamLimitTotalEventsInFlight and
// ParamAffinity are not read.
func NewTunables(p ParamAccessor) Tunables {
	return Tunables{
		NThreads:           GetInt(p, ParamNThreads, 1),
		EventPoolSize:      GetInt(p, ParamEventPoolSize, 16),
		QueueThreshold:     GetInt(p, ParamEventQueueThreshold, 80),
		SourceChunkSize:    GetInt(p, ParamEventSourceChunksize, 40),
		ProcessorChunkSize: GetInt(p, ParamEventProcessorChunksize, 1),
		Stealing:           GetBool(p, ParamEnableStealing, false),
		Locality:           ParseLocality(mustString(p, ParamLocality, "Global")),
		Timeout:            GetDuration(p, ParamTimeout, time.Second, 8*time.Second),
		WarmupTimeout:      GetDuration(p, ParamWarmupTimeout, time.Second, 30*time.Second),
		TickerInterval:     GetDuration(p, ParamTickerInterval, time.Second, 1*time.Second),
		ShowTicker:         GetBool(p, ParamShowTicker, true),
		NEvents:            GetInt(p, ParamNEvents, 0),
		NSkip:              GetInt(p, ParamNSkip, 0),
		StatusFName:        mustString(p, ParamStatusFName, ""),
	}
}

func mustString(p ParamAccessor, name, def string) string {
	if v, ok := p.GetString(name); ok {
		return v
	}
	return def
}

// unfolderSpec and folderSpec carry one registered cross-level bridge
// before the queues they need exist.
type unfolderSpec struct {
	name                Name
	unfolder            Unfolder
	parentLvl, childLvl Level
}

type folderSpec struct {
	name                Name
	folder              Folder
	parentLvl, childLvl Level
}

type processorSpec struct {
	name     Name
	behavior ProcessorBehavior
	level    Level
	parallel bool
}

// Builder accumulates component registrations (spec.md §4.5's "Inputs")
// and assembles them into a runnable Topology.
type Builder struct {
	reg      *Registrar
	tunables Tunables

	unfolders  []unfolderSpec
	folders    []folderSpec
	processors []processorSpec
	nextSeq    int
}

// NewBuilder returns a Builder that will read component lists from reg and
// size every pool/queue according to tunables.
func NewBuilder(reg *Registrar, tunables Tunables) *Builder {
	return &Builder{reg: reg, tunables: tunables}
}

func (b *Builder) seq(prefix string) Name {
	b.nextSeq++
	return fmt.Sprintf("%s#%d", prefix, b.nextSeq)
}

// Build runs the linear wiring algorithm of spec.md §4.5: one pool per
// level, a source-fed queue chain per level threaded through its
// registered processors, unfolder/folder pairs bridging adjacent levels,
// and a terminal tap (or fold) retiring every event to its pool.
//
// Levels are wired in ascending Level order (Timeslice < PhysicsEvent <
// Subevent, spec.md §3's enumeration), so a parent level's processor chain
// is always fully built before any unfolder that consumes it as input —
// this repo's resolution of "linear" for the multi-level case (DESIGN.md).
func (b *Builder) Build() (*Topology, error) {
	if b.reg == nil || len(b.reg.sources) == 0 {
		return nil, WithContext(ErrEmptyTopology, "", "Builder", "", KindConfiguration)
	}

	sourcesByLevel := map[Level]SourceBehavior{}
	for _, spec := range b.reg.sources {
		s, lvl := spec()
		sourcesByLevel[lvl] = s
	}
	for _, spec := range b.reg.unfolders {
		u, parentLvl, childLvl := spec()
		b.unfolders = append(b.unfolders, unfolderSpec{b.seq("unfolder"), u, parentLvl, childLvl})
	}
	for _, spec := range b.reg.folders {
		f, parentLvl, childLvl := spec()
		b.folders = append(b.folders, folderSpec{b.seq("folder"), f, parentLvl, childLvl})
	}
	for _, spec := range b.reg.processors {
		p, lvl, parallel := spec()
		b.processors = append(b.processors, processorSpec{b.seq("processor"), p, lvl, parallel})
	}

	levelSet := map[Level]bool{}
	for lvl := range sourcesByLevel {
		levelSet[lvl] = true
	}
	for _, u := range b.unfolders {
		levelSet[u.parentLvl] = true
		levelSet[u.childLvl] = true
	}
	for _, f := range b.folders {
		levelSet[f.parentLvl] = true
		levelSet[f.childLvl] = true
	}
	for _, p := range b.processors {
		levelSet[p.level] = true
	}
	levels := make([]Level, 0, len(levelSet))
	for lvl := range levelSet {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	locations := locationCount(b.tunables.Locality, b.tunables.NThreads)

	pools := make(map[Level]*Pool, len(levels))
	for _, lvl := range levels {
		pools[lvl] = NewPool(fmt.Sprintf("pool.%s", lvl.String()), lvl, b.tunables.EventPoolSize, locations)
	}

	unfolderByChild := make(map[Level]unfolderSpec, len(b.unfolders))
	for _, u := range b.unfolders {
		unfolderByChild[u.childLvl] = u
	}
	folderByChild := make(map[Level]folderSpec, len(b.folders))
	for _, f := range b.folders {
		folderByChild[f.childLvl] = f
	}

	var arrows []Arrow
	var queues []*Queue
	newQueue := func(lvl Level, tag string) *Queue {
		q := NewQueue(fmt.Sprintf("queue.%s.%s", lvl.String(), tag), lvl, b.tunables.QueueThreshold, locations, b.tunables.Stealing)
		queues = append(queues, q)
		return q
	}

	// tail[lvl] is that level's own processor-chain output queue, filled
	// in as each level is wired. A parent level must appear earlier in
	// the sorted order than any level it unfolds into, so its tail is
	// always available by the time a child level needs it as unfolder
	// input. claimed marks a level's tail as consumed by an unfolder, so
	// the deferred terminal-tap pass below does not also attach a Tap to
	// the same queue (which would give it two competing consumers).
	tail := make(map[Level]*Queue, len(levels))
	claimed := make(map[Level]bool, len(levels))
	// bridgeQueue[lvl] is the unfolder->folder terminator queue created
	// for the unfolder whose parent is lvl, keyed by parent level.
	bridgeQueue := make(map[Level]*Queue)

	for _, lvl := range levels {
		var cur *Queue

		if src, ok := sourcesByLevel[lvl]; ok {
			cur = newQueue(lvl, "emit")
			arrows = append(arrows, NewSourceArrow(b.seq("source"), lvl, src, pools[lvl], cur, false, b.tunables.SourceChunkSize))
		} else if u, ok := unfolderByChild[lvl]; ok {
			parentQueue, ok := tail[u.parentLvl]
			if !ok {
				return nil, WithContext(ErrUnresolvedPort, "", u.name, "", KindConfiguration)
			}
			claimed[u.parentLvl] = true
			childIn := newQueue(lvl, "unfold-in")

			var parentOutQueue *Queue
			var parentPool *Pool
			if _, hasFolder := folderByChild[lvl]; hasFolder {
				parentOutQueue = newQueue(u.parentLvl, "fold-terminator")
				bridgeQueue[u.parentLvl] = parentOutQueue
			} else {
				parentPool = pools[u.parentLvl]
			}

			arrows = append(arrows, NewUnfolderArrow(u.name, u.parentLvl, lvl, u.unfolder, parentQueue, pools[lvl], childIn, parentPool, parentOutQueue))
			cur = childIn
		}

		for _, p := range b.processors {
			if p.level != lvl {
				continue
			}
			if cur == nil {
				cur = newQueue(lvl, "orphan")
			}
			next := newQueue(lvl, "chain")
			arrows = append(arrows, NewMapArrow(p.name, lvl, p.behavior, cur, next, p.parallel, b.tunables.ProcessorChunkSize))
			cur = next
		}

		if f, ok := folderByChild[lvl]; ok {
			terminator, ok := bridgeQueue[f.parentLvl]
			if !ok {
				return nil, WithContext(ErrUnresolvedPort, "", f.name, "", KindConfiguration)
			}
			if cur == nil {
				cur = newQueue(lvl, "orphan")
			}
			arrows = append(arrows, NewFolderArrow(f.name, f.parentLvl, f.folder, cur, terminator, pools[lvl], nil, pools[f.parentLvl]))
			continue
		}

		tail[lvl] = cur
	}

	// Deferred terminal-tap pass: every level whose tail queue was never
	// claimed by a downstream unfolder or consumed by a fold gets a
	// retiring Tap, the single allowed consumer of that queue.
	for _, lvl := range levels {
		if cur := tail[lvl]; cur != nil && !claimed[lvl] {
			arrows = append(arrows, NewTapArrow(b.seq("tap"), lvl, noopProcessor{}, cur, pools[lvl]))
		}
	}

	top := &Topology{Arrows: arrows, Pools: pools, Queues: queues}
	if err := validateTopology(top); err != nil {
		return nil, err
	}
	return top, nil
}

// noopProcessor is the default terminal-tap behavior when no plugin
// registered a processor for a level's retire point: it simply lets the
// event flow to its pool.
type noopProcessor struct{}

func (noopProcessor) Process(_ context.Context, _ *Event) error { return nil }
