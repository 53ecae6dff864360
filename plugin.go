package topology

// Plugin is the interface the (external) plugin loader invokes once per
// discovered shared object (spec.md §6). InitPlugin is passed a Registrar
// and may register zero or more sources, unfolders, folders, processors,
// and factory generators. The plugin loader itself — dynamic shared-object
// discovery — is out of scope for this package (spec.md §1); only the
// registration surface it drives is specified here.
type Plugin interface {
	// Name identifies the plugin for error annotation (spec.md §4.1,
	// §7) and the component-manager-style bookkeeping used by the
	// Builder.
	Name() string
	// InitPlugin registers this plugin's components with app.
	InitPlugin(app *Registrar) error
}

// FactoryGenerator produces a Factory for a given Event on demand. Builders
// register generators rather than concrete Factory instances so that a
// fresh Factory can be attached to every Event's FactorySet without
// plugins needing to manage per-event lifetimes themselves.
type FactoryGenerator interface {
	// ObjectType and Tag identify the (object-type, tag) key the
	// produced Factory serves (spec.md §3).
	ObjectType() string
	Tag() string
	// New returns a fresh Factory instance for one Event.
	New() Factory
}

// Registrar collects the component lists a Builder consumes (spec.md
// §4.5's "Inputs"). It is populated either directly by test code or by a
// sequence of Plugin.InitPlugin calls driven by the (external) plugin
// loader.
type Registrar struct {
	App        *App
	sources    []SourceFactory
	unfolders  []UnfolderFactory
	folders    []FolderFactory
	processors []ProcessorFactory
	generators []FactoryGenerator
}

// NewRegistrar returns an empty Registrar bound to app.
func NewRegistrar(app *App) *Registrar {
	return &Registrar{App: app}
}

// SourceFactory, UnfolderFactory, FolderFactory, and ProcessorFactory build
// one instance of the corresponding Arrow behavior for one Level. They are
// factories (not bare instances) so a plugin can be loaded once but the
// Builder can still construct level-specific arrow instances deterministically.
type SourceFactory func() (SourceBehavior, Level)
type UnfolderFactory func() (Unfolder, Level /* parent */, Level /* child */)
type FolderFactory func() (Folder, Level /* parent */, Level /* child */)
type ProcessorFactory func() (ProcessorBehavior, Level, bool /* parallel */)

// AddSource registers a source-arrow factory for lvl.
func (r *Registrar) AddSource(lvl Level, fn func() SourceBehavior) {
	r.sources = append(r.sources, func() (SourceBehavior, Level) { return fn(), lvl })
}

// AddUnfolder registers an unfolder bridging parentLvl to childLvl.
func (r *Registrar) AddUnfolder(parentLvl, childLvl Level, fn func() Unfolder) {
	r.unfolders = append(r.unfolders, func() (Unfolder, Level, Level) { return fn(), parentLvl, childLvl })
}

// AddFolder registers a folder bridging childLvl back up to parentLvl.
func (r *Registrar) AddFolder(parentLvl, childLvl Level, fn func() Folder) {
	r.folders = append(r.folders, func() (Folder, Level, Level) { return fn(), parentLvl, childLvl })
}

// AddProcessor registers a processor behavior for lvl, which Build wraps in
// a MapArrow. parallel lets the arrow accept concurrent fires; a sequential
// processor runs on a non-parallel MapArrow, one fire at a time (spec.md
// §4.3's firing rules).
func (r *Registrar) AddProcessor(lvl Level, parallel bool, fn func() ProcessorBehavior) {
	r.processors = append(r.processors, func() (ProcessorBehavior, Level, bool) { return fn(), lvl, parallel })
}

// AddFactoryGenerator stores a FactoryGenerator on the Registrar.
// Builder.Build does not read the stored generators; factories reach an
// Event's FactorySet through FactorySet.Register.
func (r *Registrar) AddFactoryGenerator(gen FactoryGenerator) {
	r.generators = append(r.generators, gen)
}

// App is the process-wide application handle passed to every plugin's
// InitPlugin, replacing the teacher-language "global singleton app, japp
// used from plugins" pattern (spec.md §9) with an explicit handle plus a
// two-phase ServiceLocator.
type App struct {
	Params   ParamAccessor
	Services ServiceLocator
}

// NewApp constructs an App wrapping the given parameter accessor and
// service locator.
func NewApp(params ParamAccessor, services ServiceLocator) *App {
	return &App{Params: params, Services: services}
}

// LoadPlugins runs InitPlugin for each plugin against a fresh Registrar and
// returns the populated Registrar, or the first KindConfiguration error
// encountered.
func LoadPlugins(app *App, plugins ...Plugin) (*Registrar, error) {
	reg := NewRegistrar(app)
	for _, p := range plugins {
		if err := p.InitPlugin(reg); err != nil {
			return nil, &Error{
				Err:       err,
				Plugin:    p.Name(),
				Kind:      KindConfiguration,
				Path:      []Name{"LoadPlugins", p.Name()},
			}
		}
	}
	return reg, nil
}
