package container

import "github.com/paivaric/porto/pkg/porterror"

// State is the container lifecycle state
type State int

// Lifecycle states. Stopped -> Running -> (Paused <-> Running) -> Dead ->
// Stopped; every other transition is rejected with InvalidState.
const (
	Stopped State = iota
	Running
	Paused
	Dead
)

var stateToString = []string{
	"stopped",
	"running",
	"paused",
	"dead",
}

func (s State) String() string {
	if s >= Stopped && int(s) < len(stateToString) {
		return stateToString[s]
	}
	return "unknown"
}

// checkState gates an operation on the current state
func (c *Container) checkState(op string, allowed ...State) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return porterror.Newf(porterror.InvalidState,
		"%s: cannot %s while %s", c.name, op, c.state)
}
