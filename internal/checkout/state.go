package checkout

import "fmt"

type State int

const (
	Initial State = iota
	Confirming
	Success
)

var transitions = map[State][]State{
	Initial:    {Confirming},
	Confirming: {Success, Initial},
}

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Confirming:
		return "confirming"
	case Success:
		return "success"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
