package razy

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Application is the top of the dispatch tree for one request: it
// resolves the request's FQDN to a Domain and exposes cross-domain peer
// connections. Instances are cheap and request-scoped; long-lived state
// (controller registry, plugin manager, compiled-route cache, observers)
// is injected and shared across instances.
type Application struct {
	root         string
	config       *AppConfig
	host         string
	logger       Logger
	controllers  ControllerRegistry
	plugins      *PluginManager
	cache        *RouteCache
	subject      *EventSubject
	sharedFolder string
	peer         *Application
}

// AppOption configures an Application at construction.
type AppOption func(*Application)

// WithAppLogger sets the application logger.
func WithAppLogger(logger Logger) AppOption {
	return func(a *Application) { a.logger = logger }
}

// WithRegistry sets the controller registry handed to distributors.
func WithRegistry(reg ControllerRegistry) AppOption {
	return func(a *Application) { a.controllers = reg }
}

// WithPlugins attaches a shared plugin manager.
func WithPlugins(plugins *PluginManager) AppOption {
	return func(a *Application) { a.plugins = plugins }
}

// WithCache attaches a shared compiled-route cache.
func WithCache(cache *RouteCache) AppOption {
	return func(a *Application) { a.cache = cache }
}

// WithObservers attaches a lifecycle event subject.
func WithObservers(subject *EventSubject) AppOption {
	return func(a *Application) { a.subject = subject }
}

// WithSharedModules overrides the shared module folder, which defaults
// to <root>/shared.
func WithSharedModules(folder string) AppOption {
	return func(a *Application) { a.sharedFolder = folder }
}

// NewApplication creates an application rooted at root, scoped to the
// request host.
func NewApplication(root string, config *AppConfig, host string, opts ...AppOption) *Application {
	a := &Application{
		root:         root,
		config:       config,
		host:         host,
		logger:       NewNopLogger(),
		controllers:  make(ControllerRegistry),
		sharedFolder: filepath.Join(root, "shared"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Host returns the FQDN this instance serves.
func (a *Application) Host() string { return a.host }

// Peer returns the application that initiated this one through Connect,
// or nil. The peer is consulted only for whitelist checks.
func (a *Application) Peer() *Application { return a.peer }

// Logger returns the application logger.
func (a *Application) Logger() Logger { return a.logger }

// Plugins returns the attached plugin manager, or nil.
func (a *Application) Plugins() *PluginManager { return a.plugins }

// ResolveDomain resolves an FQDN to a configured domain, checking exact
// names first, then aliases.
func (a *Application) ResolveDomain(fqdn string) (*Domain, error) {
	if cfg, ok := a.config.Domains[fqdn]; ok {
		return newDomain(a, fqdn, cfg), nil
	}
	for name, cfg := range a.config.Domains {
		if slices.Contains(cfg.Alias, fqdn) {
			return newDomain(a, name, cfg), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, fqdn)
}

// Domain resolves this instance's own host.
func (a *Application) Domain() (*Domain, error) {
	return a.ResolveDomain(a.host)
}

// Distributor resolves the host and URL path to a fresh, loaded
// distributor and the in-distributor path remainder.
func (a *Application) Distributor(ctx context.Context, urlPath string) (*Distributor, string, error) {
	domain, err := a.Domain()
	if err != nil {
		return nil, "", err
	}
	d, remainder, err := domain.Distributor(urlPath)
	if err != nil {
		return nil, "", err
	}
	if err := d.Load(ctx); err != nil {
		return nil, "", err
	}
	return d, remainder, nil
}

// Dispatch resolves and dispatches one web request. The first return
// reports whether a route matched; unmatched requests are the caller's
// 404. Configuration errors surface as errors (the caller's 5xx).
func (a *Application) Dispatch(ctx context.Context, urlPath string) (bool, error) {
	d, remainder, err := a.Distributor(ctx, urlPath)
	if err != nil {
		return false, err
	}
	if !d.Ready() {
		return false, nil
	}
	return d.Dispatch(ctx, remainder)
}

// RunScript resolves a distributor the same way Dispatch does and runs a
// registered CLI script against it.
func (a *Application) RunScript(ctx context.Context, urlPath, command string, args []string) (bool, error) {
	d, _, err := a.Distributor(ctx, urlPath)
	if err != nil {
		return false, err
	}
	if !d.Ready() {
		return false, nil
	}
	return d.DispatchScript(ctx, command, args)
}

// Connect constructs a peer application scoped to another configured
// domain. The returned instance shares this application's long-lived
// state and records this instance as its peer; distributors it resolves
// enforce their whitelist against this instance's host.
func (a *Application) Connect(fqdn string) (*Application, error) {
	if _, err := a.ResolveDomain(fqdn); err != nil {
		return nil, err
	}

	peer := &Application{
		root:         a.root,
		config:       a.config,
		host:         fqdn,
		logger:       a.logger,
		controllers:  a.controllers,
		plugins:      a.plugins,
		cache:        a.cache,
		subject:      a.subject,
		sharedFolder: a.sharedFolder,
		peer:         a,
	}

	if a.subject != nil {
		a.subject.emit(context.Background(), EventTypePeerConnected, "application/"+a.host, map[string]any{
			"from": a.host,
			"to":   fqdn,
		}, nil)
	}
	return peer, nil
}

// WatchConfig watches distributor config files and invalidates the
// compiled-route cache when one changes. Returns a stop function.
func (a *Application) WatchConfig(paths ...string) (func(), error) {
	if a.cache == nil {
		return func() {}, nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			a.logger.Warn("Cannot watch config", "path", path, "error", err)
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, _, err := LoadDistConfig(event.Name)
				if err != nil {
					a.logger.Warn("Changed config unreadable", "path", event.Name, "error", err)
					continue
				}
				a.cache.Invalidate(cfg.Dist)
				a.logger.Info("Route cache invalidated", "distributor", cfg.Dist, "path", event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.logger.Error("Config watcher error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}

// distOptions are the construction options wired into every distributor
// this application resolves.
func (a *Application) distOptions() []DistOption {
	return []DistOption{
		WithLogger(a.logger),
		WithControllers(a.controllers),
		WithSubject(a.subject),
		WithRouteCache(a.cache),
		WithSharedFolder(a.sharedFolder),
	}
}
