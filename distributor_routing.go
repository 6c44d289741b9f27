package razy

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// setRoute registers a regex route. The pattern is compiled once, through
// the shared cache when one is attached.
func (d *Distributor) setRoute(m *Module, pattern string, path any) error {
	closure, data, err := resolveRoutePath(path)
	if err != nil {
		return err
	}
	re, err := d.compilePattern(pattern)
	if err != nil {
		return err
	}
	d.routes = append(d.routes, &regexRoute{
		owner:   m,
		pattern: pattern,
		re:      re,
		closure: closure,
		data:    data,
	})
	d.logger.Debug("Route registered", "module", m.info.Code(), "pattern", pattern)
	return nil
}

// setLazyRoute registers a prefix route. target is empty for plain lazy
// routes; for shadow routes it names the executing module.
func (d *Distributor) setLazyRoute(m *Module, prefix, target, closure string) error {
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidRoutePrefix, prefix)
	}
	p := normalizePath(prefix)
	d.lazyRoutes = append(d.lazyRoutes, &lazyRoute{
		owner:   m,
		target:  target,
		prefix:  p,
		depth:   pathDepth(p),
		closure: closure,
	})
	// Deeper prefixes win regardless of registration order; ties keep
	// registration order.
	sort.SliceStable(d.lazyRoutes, func(i, j int) bool {
		return d.lazyRoutes[i].depth > d.lazyRoutes[j].depth
	})
	d.logger.Debug("Lazy route registered", "module", m.info.Code(), "prefix", p, "target", target)
	return nil
}

// registerScript registers a CLI script handler matched by command prefix.
func (d *Distributor) registerScript(m *Module, prefix, closure string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return fmt.Errorf("%w: empty script prefix", ErrInvalidRoutePrefix)
	}
	d.scripts = append(d.scripts, &scriptRoute{owner: m, prefix: prefix, closure: closure})
	sort.SliceStable(d.scripts, func(i, j int) bool {
		return len(d.scripts[i].prefix) > len(d.scripts[j].prefix)
	})
	return nil
}

func resolveRoutePath(path any) (string, any, error) {
	switch p := path.(type) {
	case string:
		return p, nil, nil
	case RoutePath:
		return p.ClosurePath(), p.Data(), nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported path type %T", ErrInvalidRoutePattern, path)
	}
}

func (d *Distributor) compilePattern(pattern string) (*regexp.Regexp, error) {
	if d.cache != nil {
		return d.cache.compile(d.cacheKey(), pattern)
	}
	return CompileRoute(pattern)
}

// cacheKey identifies this distributor's compiled routes in the shared
// cache: code plus config modification time, so a config change rolls the
// key instead of mutating entries in place.
func (d *Distributor) cacheKey() string {
	return fmt.Sprintf("%s@%d", d.code, d.configMTime.UnixNano())
}

// StackState pushes a call-flow marker. The engine pushes one around
// every dispatch so re-entrant internal API calls can tell whether they
// are running inside route matching.
func (d *Distributor) StackState(marker string) {
	d.stateStack = append(d.stateStack, marker)
}

// ReleaseState pops the most recent call-flow marker.
func (d *Distributor) ReleaseState() {
	if n := len(d.stateStack); n > 0 {
		d.stateStack = d.stateStack[:n-1]
	}
}

// InRouting reports whether the engine is currently inside a dispatch.
func (d *Distributor) InRouting() bool {
	return len(d.stateStack) > 0
}

// Match resolves a URL path against the route tables without side
// effects: regex routes first, then lazy prefixes by descending depth.
// Only routes owned by (and targeting) loaded modules participate.
func (d *Distributor) Match(urlPath string) (*RoutedInfo, *Module) {
	p := normalizePath(urlPath)

	for _, r := range d.routes {
		if r.owner.status != StatusLoaded {
			continue
		}
		sub := r.re.FindStringSubmatch(p)
		if sub == nil {
			continue
		}
		return &RoutedInfo{
			Module:      r.owner.info.Code(),
			Target:      r.owner.info.Code(),
			Route:       r.pattern,
			ClosurePath: r.closure,
			Args:        sub[1:],
			Data:        r.data,
			URLPath:     p,
		}, r.owner
	}

	for _, lz := range d.lazyRoutes {
		if lz.owner.status != StatusLoaded {
			continue
		}
		if !strings.HasPrefix(p, lz.prefix) {
			continue
		}
		target := lz.owner
		if lz.target != "" {
			t, ok := d.modules[lz.target]
			if !ok || t.status != StatusLoaded {
				continue
			}
			target = t
		}
		remainder := strings.TrimPrefix(p, lz.prefix)
		return &RoutedInfo{
			Module:      lz.owner.info.Code(),
			Target:      target.info.Code(),
			Route:       lz.prefix,
			ClosurePath: lz.closure,
			Args:        splitArgs(remainder),
			URLPath:     p,
		}, target
	}

	return nil, nil
}

// Dispatch matches urlPath and, on a hit, runs the dispatch protocol:
// prepare on the target, a call-flow marker, standby to every loaded
// module (credited to the route owner), entry on the target, then the
// bound handler with the matched arguments. The first return reports
// whether a route matched; unmatched requests are the caller's 404.
func (d *Distributor) Dispatch(ctx context.Context, urlPath string) (bool, error) {
	rt, target := d.Match(urlPath)
	if rt == nil {
		return false, nil
	}

	if !target.prepare(rt.Args) {
		d.logger.Debug("Dispatch suppressed by prepare", "module", rt.Target, "path", rt.URLPath)
		return false, nil
	}

	d.StackState(rt.URLPath)
	defer d.ReleaseState()
	ctx = WithDistributor(ctx, d)

	owner := d.modules[rt.Module]
	for _, code := range d.order {
		if m := d.modules[code]; m.status == StatusLoaded {
			m.standby(owner.info)
		}
	}
	target.entry(rt)

	handler, ok := target.handler(rt.ClosurePath)
	if !ok {
		return true, fmt.Errorf("%w: %s in %s", ErrBindingNotFound, rt.ClosurePath, rt.Target)
	}

	if d.subject != nil {
		d.subject.emit(ctx, EventTypeRouteMatched, "distributor/"+d.code, map[string]any{
			"module": rt.Module,
			"target": rt.Target,
			"route":  rt.Route,
			"path":   rt.URLPath,
		}, nil)
	}

	return true, handler(ctx, rt)
}

// DispatchScript resolves a CLI command against the registered script
// table. Matching is prefix-only, longest prefix first; there is no
// regex stage in CLI mode.
func (d *Distributor) DispatchScript(ctx context.Context, command string, args []string) (bool, error) {
	for _, s := range d.scripts {
		if s.owner.status != StatusLoaded {
			continue
		}
		if !strings.HasPrefix(command, s.prefix) {
			continue
		}
		handler, ok := s.owner.handler(s.closure)
		if !ok {
			return true, fmt.Errorf("%w: %s in %s", ErrBindingNotFound, s.closure, s.owner.info.Code())
		}

		d.StackState("script:" + command)
		defer d.ReleaseState()
		ctx = WithDistributor(ctx, d)

		rt := &RoutedInfo{
			Module:      s.owner.info.Code(),
			Target:      s.owner.info.Code(),
			Route:       s.prefix,
			ClosurePath: s.closure,
			Args:        args,
			URLPath:     command,
		}
		s.owner.entry(rt)
		return true, handler(ctx, rt)
	}
	return false, nil
}

func splitArgs(remainder string) []string {
	return strings.FieldsFunc(remainder, func(r rune) bool { return r == '/' })
}
