package common

import "errors"

// ErrReentrancy is returned when a state-mutating operation is re-entered
// from within another operation's callback.
var ErrReentrancy = errors.New("reentrant call rejected")

// ReentrancyGuard rejects nested invocations of state-mutating operations.
// The execution model serializes operations, so a plain flag suffices; the
// guard exists to catch collaborator callbacks (e.g. a bundled-transfer
// executor) attempting to re-enter the engine mid-operation.
type ReentrancyGuard struct {
	busy bool
}

// Enter acquires the guard and returns a release function. The release
// function must be invoked on every exit path; callers defer it immediately.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	if g.busy {
		return nil, ErrReentrancy
	}
	g.busy = true
	return func() { g.busy = false }, nil
}
