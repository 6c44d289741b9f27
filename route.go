package razy

import (
	"regexp"
	"strings"
)

// RoutePath is the richer form of a route's closure reference. SetRoute
// accepts either a plain binding name or a RoutePath carrying extra data
// for the handler.
type RoutePath interface {
	// ClosurePath returns the binding name the route dispatches to.
	ClosurePath() string

	// Data returns arbitrary payload made available on the RoutedInfo.
	Data() any
}

// DataPath is the standard RoutePath implementation.
type DataPath struct {
	Path    string
	Payload any
}

// ClosurePath implements RoutePath.
func (p DataPath) ClosurePath() string { return p.Path }

// Data implements RoutePath.
func (p DataPath) Data() any { return p.Payload }

// RoutedInfo describes a matched route. It is passed to standby/entry
// notifications and to the dispatched handler, and carries the original
// route string for audit.
type RoutedInfo struct {
	// Module is the code of the module owning the route.
	Module string

	// Target is the code of the module executing the handler. Differs
	// from Module only for shadow routes.
	Target string

	// Route is the original route string as registered.
	Route string

	// ClosurePath is the binding name the dispatch resolved to.
	ClosurePath string

	// Args are the matched path arguments.
	Args []string

	// Data is the payload of a RoutePath descriptor, nil otherwise.
	Data any

	// URLPath is the normalized request path being dispatched.
	URLPath string
}

// regexRoute is a compiled entry of the regex route table.
type regexRoute struct {
	owner   *Module
	pattern string
	re      *regexp.Regexp
	closure string
	data    any
}

// lazyRoute is an entry of the prefix route table. target is empty for
// plain lazy routes and holds the executing module's code for shadow
// routes.
type lazyRoute struct {
	owner   *Module
	target  string
	prefix  string
	depth   int
	closure string
}

// scriptRoute is an entry of the CLI script table.
type scriptRoute struct {
	owner   *Module
	prefix  string
	closure string
}

// normalizePath canonicalizes a URL path to the framework form: leading
// and trailing slash, no empty segments.
func normalizePath(p string) string {
	segments := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return "/"
	}
	return "/" + strings.Join(segments, "/") + "/"
}

// pathDepth counts the segments of a normalized path. "/" is depth zero.
func pathDepth(p string) int {
	return len(strings.FieldsFunc(p, func(r rune) bool { return r == '/' }))
}

func eventKey(sourceCode, event string) string {
	return sourceCode + ":" + event
}
