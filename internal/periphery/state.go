package periphery

// State is the registry's configuration state.
type State int32

// Registry states.
const (
	// StateIdle: the last apply succeeded or was rolled back.
	StateIdle State = iota

	// StateApplying: parameters from a config file are being set.
	StateApplying

	// StateRolledBack: an apply failed and the backup is being restored.
	StateRolledBack

	// StateInconsistent: a rollback failed. Parameters are unknown until
	// a later apply succeeds.
	StateInconsistent
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateApplying:     "applying",
	StateRolledBack:   "rolled_back",
	StateInconsistent: "inconsistent",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func parseState(name string) State {
	for i, n := range stateNames {
		if n == name {
			return State(i)
		}
	}
	return StateInconsistent
}
