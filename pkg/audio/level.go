package audio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// maxInt16 is the normalisation ceiling for RMS values.
const maxInt16 = 32768.0

// defaultSmoothing is the exponential smoothing factor applied to successive
// RMS measurements. Higher values track the signal more closely; lower values
// suppress momentary spikes.
const defaultSmoothing = 0.3

// LevelMeter tracks a continuously updated, smoothed RMS signal level per
// source, normalised to [0, 1]. Capture sources feed it one chunk at a time;
// the suppression gate reads the current levels without buffering.
//
// All methods are safe for concurrent use. Levels are stored as atomic bits
// so readers never block writers.
type LevelMeter struct {
	smoothing float64
	levels    [2]atomic.Uint64 // indexed by Source, math.Float64bits encoded
}

// NewLevelMeter creates a meter with the given smoothing factor. A smoothing
// of zero selects the default (0.3).
func NewLevelMeter(smoothing float64) *LevelMeter {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = defaultSmoothing
	}
	return &LevelMeter{smoothing: smoothing}
}

// Update measures the RMS level of pcm (little-endian int16 mono) and folds
// it into the smoothed level for source. Empty chunks are ignored.
func (m *LevelMeter) Update(source Source, pcm []byte) {
	n := len(pcm) / 2
	if n == 0 {
		return
	}

	var energy float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		energy += s * s
	}
	rms := math.Sqrt(energy/float64(n)) / maxInt16
	if rms > 1 {
		rms = 1
	}

	prev := m.Level(source)
	next := m.smoothing*rms + (1-m.smoothing)*prev
	m.levels[source].Store(math.Float64bits(next))
}

// Level returns the current smoothed level for source in [0, 1].
func (m *LevelMeter) Level(source Source) float64 {
	return math.Float64frombits(m.levels[source].Load())
}

// Reset clears both sources' levels to zero. Use between sessions so stale
// levels from a previous recording do not influence the gate.
func (m *LevelMeter) Reset() {
	m.levels[SourceLocal].Store(0)
	m.levels[SourceRemote].Store(0)
}
