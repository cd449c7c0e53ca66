package game

import "fmt"

// Action is a move relative to the current heading.
type Action int

const (
	ActionStraight Action = 0
	ActionLeft     Action = 1
	ActionRight    Action = 2
)

// NumActions is the size of the action space.
const NumActions = 3

var actionNames = [...]string{"straight", "left", "right"}

func (a Action) Valid() bool {
	return a >= ActionStraight && a <= ActionRight
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction validates a raw action code coming from a policy.
func ParseAction(code int) (Action, error) {
	a := Action(code)
	if !a.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAction, code)
	}
	return a, nil
}

// ActionFromName parses "straight", "left" or "right".
func ActionFromName(name string) (Action, error) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAction, name)
}
