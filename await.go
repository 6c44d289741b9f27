package razy

import "strings"

// awaitEntry is one deferred callback gated on a set of modules reaching
// StatusLoaded. remaining counts codes still outstanding; the callback
// fires exactly once when it hits zero.
type awaitEntry struct {
	remaining int
	callback  func()
}

// awaitRegistry is a counter-based multi-wait: each module code indexes
// the entries still waiting on it, so readiness resolution is a map
// lookup plus a decrement, not a scan.
type awaitRegistry struct {
	nextID  int
	entries map[int]*awaitEntry
	index   map[string][]int
}

func newAwaitRegistry() *awaitRegistry {
	return &awaitRegistry{
		entries: make(map[int]*awaitEntry),
		index:   make(map[string][]int),
	}
}

// add registers a callback gated on codes. Codes failing module-code
// validation are dropped silently; codes already satisfied (per loaded)
// are not counted. A requirement set that is empty after filtering fires
// immediately.
func (r *awaitRegistry) add(codes []string, callback func(), loaded func(code string) bool) {
	pending := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if !ValidModuleCode(code) || seen[code] {
			continue
		}
		seen[code] = true
		if !loaded(code) {
			pending = append(pending, code)
		}
	}

	if len(pending) == 0 {
		callback()
		return
	}

	id := r.nextID
	r.nextID++
	r.entries[id] = &awaitEntry{remaining: len(pending), callback: callback}
	for _, code := range pending {
		r.index[code] = append(r.index[code], id)
	}
}

// moduleLoaded resolves every entry waiting on code, firing callbacks
// whose requirement set has emptied.
func (r *awaitRegistry) moduleLoaded(code string) {
	ids := r.index[code]
	if len(ids) == 0 {
		return
	}
	delete(r.index, code)

	for _, id := range ids {
		entry, ok := r.entries[id]
		if !ok {
			continue
		}
		entry.remaining--
		if entry.remaining == 0 {
			delete(r.entries, id)
			entry.callback()
		}
	}
}
