package topology

import "context"

type locationCtxKey struct{}

// WithLocation attaches the firing worker's location id to ctx, so an
// Arrow's Fire body can address the right partition of its Queues/Pools
// without the Arrow interface itself needing a location parameter
// (spec.md §3's "Topology" worker-id -> (cpu, location) mapping).
func WithLocation(ctx context.Context, loc int) context.Context {
	return context.WithValue(ctx, locationCtxKey{}, loc)
}

// locationFromContext returns the location attached by WithLocation, or 0
// (the Global/single-location default) if none was attached.
func locationFromContext(ctx context.Context) int {
	if loc, ok := ctx.Value(locationCtxKey{}).(int); ok {
		return loc
	}
	return 0
}

type outputGrantCtxKey struct{}

// WithOutputGrant attaches the per-port downstream reservation an arrow
// was granted at admission time (engine.go's reserveOutputsLocked), so
// Fire can cap how much it produces to what the engine already reserved
// instead of finding out only when Push overruns the queue (spec.md
// §4.2: reservation gates admission, not production).
func WithOutputGrant(ctx context.Context, grant map[int]int) context.Context {
	return context.WithValue(ctx, outputGrantCtxKey{}, grant)
}

// outputGrantFor returns how many items Fire may push to port, 0 if no
// grant was attached for it.
func outputGrantFor(ctx context.Context, port int) int {
	grant, _ := ctx.Value(outputGrantCtxKey{}).(map[int]int)
	return grant[port]
}
