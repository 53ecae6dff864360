package topology

import "context"

// Application wires a Registrar's registered components into a runnable
// Engine plus its Supervisor — the top-level handle a binary's main()
// constructs once plugins have registered (spec.md §6's two-phase
// init: provide, then acquire_services, then run).
type Application struct {
	App        *App
	Tunables   Tunables
	Topology   *Topology
	Engine     *Engine
	Supervisor *Supervisor
	Status     *StatusChannel
}

// NewApplication builds the Topology from reg, sizes the worker pool and
// supervisor from app's parameters, and opens the status channel if
// jana:status_fname was set.
func NewApplication(app *App, reg *Registrar) (*Application, error) {
	tunables := NewTunables(app.Params)

	top, err := NewBuilder(reg, tunables).Build()
	if err != nil {
		return nil, err
	}

	mapping := NewProcessorMapping(tunables.Locality, tunables.NThreads)
	clock := defaultClock()
	engine := NewEngine(top, mapping, clock)
	engine.Scale(tunables.NThreads)

	var status *StatusChannel
	if tunables.StatusFName != "" {
		status, err = NewStatusChannel(tunables.StatusFName)
		if err != nil {
			return nil, WithContext(err, "", "Application", "", KindConfiguration)
		}
	}

	return &Application{
		App:        app,
		Tunables:   tunables,
		Topology:   top,
		Engine:     engine,
		Supervisor: NewSupervisor(engine, tunables, clock, status),
		Status:     status,
	}, nil
}

// Run starts the supervisor watchdog alongside the engine and blocks
// until the engine reaches Paused or Failed, returning the engine's
// error in the latter case.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.Supervisor.Watch(ctx)
	err := a.Engine.Run(ctx)

	if a.Status != nil {
		_ = a.Status.Close()
	}
	return err
}
