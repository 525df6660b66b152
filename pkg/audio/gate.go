package audio

// Suppression gate default tuning. Remote speech above SpeechThreshold marks
// the remote party as actively speaking; a local chunk is then only forwarded
// when the local level clears both the absolute floor and the relative ratio
// against the remote level.
const (
	// SpeechThreshold is the remote level at or above which the remote
	// party is considered to be speaking.
	SpeechThreshold = 0.14

	// BargeFloor is the minimum absolute local level required to barge in
	// over active remote speech.
	BargeFloor = 0.03

	// BargeRatio is the multiple of the remote level the local level must
	// reach to barge in over active remote speech.
	BargeRatio = 1.15
)

// Gate is the echo/barge-in suppression decision for local microphone
// chunks. It prevents the microphone from re-capturing remote audio played
// through the speakers while still letting the local speaker interrupt.
//
// The zero value is not usable; construct with [NewGate].
type Gate struct {
	speechThreshold float64
	bargeFloor      float64
	bargeRatio      float64
}

// NewGate creates a gate with the given tuning. Any non-positive value
// selects the package default.
func NewGate(speechThreshold, bargeFloor, bargeRatio float64) Gate {
	if speechThreshold <= 0 {
		speechThreshold = SpeechThreshold
	}
	if bargeFloor <= 0 {
		bargeFloor = BargeFloor
	}
	if bargeRatio <= 0 {
		bargeRatio = BargeRatio
	}
	return Gate{
		speechThreshold: speechThreshold,
		bargeFloor:      bargeFloor,
		bargeRatio:      bargeRatio,
	}
}

// ShouldSuppress decides whether a local microphone chunk should be dropped
// instead of forwarded to the interleaver.
//
// It is a pure function of the two levels: the same (local, remote) pair
// always yields the same result. Suppressed chunks are dropped, never
// queued or retried.
func (g Gate) ShouldSuppress(localLevel, remoteLevel float64) bool {
	if remoteLevel < g.speechThreshold {
		return false
	}
	bargeIn := g.bargeRatio * remoteLevel
	if bargeIn < g.bargeFloor {
		bargeIn = g.bargeFloor
	}
	return localLevel < bargeIn
}

// ShouldSuppress applies the default gate tuning.
func ShouldSuppress(localLevel, remoteLevel float64) bool {
	return NewGate(0, 0, 0).ShouldSuppress(localLevel, remoteLevel)
}
