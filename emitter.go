package razy

import (
	"github.com/Masterminds/semver/v3"
)

// Emitter is an explicit API proxy to one target module. Instead of a
// dynamic method trap, commands are dispatched by name against the
// target's API-command table.
type Emitter struct {
	requester *Module
	target    *Module
}

// Target returns the code of the proxied module.
func (e *Emitter) Target() string { return e.target.info.Code() }

// Call invokes a named API command on the target module. Calls against a
// module below StatusLoaded, unknown commands and handler errors all
// return (nil, false); callers must check the second return.
func (e *Emitter) Call(command string, args ...any) (any, bool) {
	var requester *ModuleInfo
	if e.requester != nil {
		requester = e.requester.info
	}
	return e.target.execute(requester, command, args)
}

// Touch performs a version-negotiation handshake against the target,
// passing the requester's code and version. Targets without a Touchable
// controller accept every handshake; targets below StatusLoaded reject.
func (e *Emitter) Touch(message string) bool {
	code := ""
	var version *semver.Version
	if e.requester != nil {
		code = e.requester.info.Code()
		if v, err := semver.NewVersion(e.requester.info.Version()); err == nil {
			version = v
		}
	}
	return e.target.touch(code, version, message)
}
