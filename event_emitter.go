package razy

// maxResolveDepth caps re-entrant event resolution. Listeners may emit
// while handling, but a cyclic event graph is cut here instead of
// overflowing the stack.
const maxResolveDepth = 32

// EventEmitter is bound to one emitting module and one event name.
// Resolve fans the event out to every listening module and accumulates
// their results in call order.
type EventEmitter struct {
	dist   *Distributor
	source *Module
	event  string
}

// Event returns the bound event name.
func (e *EventEmitter) Event() string { return e.event }

// Resolve fires the event at every registered listener and returns their
// results in call order.
func (e *EventEmitter) Resolve(args ...any) []any {
	return e.ResolveWith(nil, args...)
}

// ResolveWith is Resolve with a per-result callback invoked after each
// listener, receiving the listener's result and module code.
func (e *EventEmitter) ResolveWith(callback func(result any, listener string), args ...any) []any {
	if e.dist.emitDepth >= maxResolveDepth {
		e.dist.logger.Error("Event resolution dropped", "event", e.event, "source", e.source.info.Code(), "error", ErrEventDepthExceeded)
		return nil
	}
	e.dist.emitDepth++
	defer func() { e.dist.emitDepth-- }()

	key := eventKey(e.source.info.Code(), e.event)
	listeners := e.dist.listeners[key]
	results := make([]any, 0, len(listeners))
	for _, listener := range listeners {
		if listener.status != StatusLoaded {
			continue
		}
		result, handled := listener.fireEvent(key, args)
		if !handled {
			continue
		}
		results = append(results, result)
		if callback != nil {
			callback(result, listener.info.Code())
		}
	}
	return results
}
