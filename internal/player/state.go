package player

// State is a player state and also the transition posted on the command
// channel.
type State int32

const (
	Idle State = iota
	Start
	Playing
	Paused
	Finish

	numStates
)

var stateNames = [numStates]string{"IDLE", "START", "PLAYING", "PAUSED", "FINISH"}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// active states accept Write.
func (s State) active() bool {
	return s == Start || s == Playing
}
