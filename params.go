package topology

import (
	"strconv"
	"strings"
	"time"
)

// ParamAccessor is the interface this package consumes from the external
// parameter manager (spec.md §1, §6). It is deliberately narrow: name
// lookup plus typed conversion. Names are case-insensitive and
// colon-separated ("jana:event_pool_size"); the accessor is responsible for
// any registration/defaulting semantics of the real parameter manager,
// which is out of scope here.
type ParamAccessor interface {
	// GetString returns the raw value and whether it was present.
	GetString(name string) (string, bool)
}

// GetInt reads an integer parameter, returning def if absent or unparsable.
func GetInt(p ParamAccessor, name string, def int) int {
	v, ok := p.GetString(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetBool reads a boolean parameter, returning def if absent or unparsable.
func GetBool(p ParamAccessor, name string, def bool) bool {
	v, ok := p.GetString(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// GetDuration reads an integer parameter and multiplies it by unit (for
// example time.Second for a value in whole seconds) to give a
// time.Duration. The name's suffix is not inspected.
func GetDuration(p ParamAccessor, name string, unit time.Duration, def time.Duration) time.Duration {
	v, ok := p.GetString(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return time.Duration(n) * unit
}

// MapParams is a minimal in-memory ParamAccessor over a flat
// map[string]string, matching the "flat mapping name -> string" shape of
// spec.md §6 exactly. It normalizes names to lower-case so lookups are
// case-insensitive, as required.
type MapParams map[string]string

// GetString implements ParamAccessor.
func (m MapParams) GetString(name string) (string, bool) {
	v, ok := m[strings.ToLower(name)]
	return v, ok
}

// NewMapParams builds a MapParams from a set of key/value pairs, lower-
// casing keys on insertion.
func NewMapParams(kv map[string]string) MapParams {
	m := make(MapParams, len(kv))
	for k, v := range kv {
		m[strings.ToLower(k)] = v
	}
	return m
}

// Recognized parameter names (spec.md §6), exported as constants so
// builders and tests don't hand-type them.
const (
	ParamNThreads                   = "nthreads"
	ParamEventPoolSize              = "jana:event_pool_size"
	ParamLimitTotalEventsInFlight   = "jana:limit_total_events_in_flight"
	ParamEventQueueThreshold        = "jana:event_queue_threshold"
	ParamEventSourceChunksize       = "jana:event_source_chunksize"
	ParamEventProcessorChunksize    = "jana:event_processor_chunksize"
	ParamEnableStealing             = "jana:enable_stealing"
	ParamAffinity                   = "jana:affinity"
	ParamLocality                   = "jana:locality"
	ParamTimeout                    = "jana:timeout"
	ParamWarmupTimeout              = "jana:warmup_timeout"
	ParamTickerInterval             = "jana:ticker_interval"
	ParamShowTicker                 = "jana:show_ticker"
	ParamNEvents                    = "jana:nevents"
	ParamNSkip                      = "jana:nskip"
	ParamStatusFName                = "jana:status_fname"
)
