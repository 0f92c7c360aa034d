package model

// NodeState is a node's position in its lifecycle.
//
//	Active -> Trashed -> Restored -> Active
//	             \-> Purged
//	Active -> Purged
//
// Purged is terminal.
type NodeState int

const (
	Active NodeState = iota
	Trashed
	Restored
	Purged
)

func (s NodeState) String() string {
	switch s {
	case Active:
		return "active"
	case Trashed:
		return "trashed"
	case Restored:
		return "restored"
	case Purged:
		return "purged"
	default:
		return "unknown"
	}
}

var transitions = map[NodeState][]NodeState{
	Active:   {Trashed, Purged},
	Trashed:  {Restored, Purged},
	Restored: {Active},
}

// CanTransition reports whether a node may move from one state to another.
func CanTransition(from, to NodeState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
