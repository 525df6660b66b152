package audio

import (
	"encoding/binary"
	"time"
)

// DefaultCadence is the multiplexed frame cadence used when the
// configuration does not override it.
const DefaultCadence = 100 * time.Millisecond

// Interleaver merges the two independent mono PCM streams into one
// multiplexed buffer on a fixed cadence. Channel 0 carries local samples,
// channel 1 carries remote samples, sample-interleaved little-endian int16.
//
// The two sources are independent producers: the interleaver never blocks
// waiting for one side. A frame is emitted as soon as either side has
// buffered one cadence worth of samples; the slower side is padded with
// silence so the multiplexed stream never stalls during one-sided speech.
//
// Interleaver is not safe for concurrent use; the session controller
// serializes all calls into it.
type Interleaver struct {
	frameSamples int // mono samples per source per frame
	onFrame      func([]byte)

	local   []int16
	remote  []int16
	running bool
}

// NewInterleaver creates an interleaver for the given format and cadence.
// onFrame is invoked synchronously with each completed multiplexed frame
// and receives ownership of the slice.
func NewInterleaver(format Format, cadence time.Duration, onFrame func([]byte)) *Interleaver {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Interleaver{
		frameSamples: format.SamplesPerCadence(cadence),
		onFrame:      onFrame,
	}
}

// Start resets the internal buffers and begins accepting audio.
func (iv *Interleaver) Start() {
	iv.local = iv.local[:0]
	iv.remote = iv.remote[:0]
	iv.running = true
}

// Stop discards any partially filled frame and stops accepting audio.
// A partial multiplexed frame cannot be meaningfully decoded downstream,
// so buffered remainders are dropped rather than flushed.
func (iv *Interleaver) Stop() {
	iv.local = nil
	iv.remote = nil
	iv.running = false
}

// AppendLocal buffers local-source PCM and emits any frames that became
// complete. Audio appended while the interleaver is stopped is dropped.
func (iv *Interleaver) AppendLocal(pcm []byte) {
	if !iv.running {
		return
	}
	iv.local = appendSamples(iv.local, pcm)
	iv.emit()
}

// AppendRemote buffers remote-source PCM and emits any frames that became
// complete. Audio appended while the interleaver is stopped is dropped.
func (iv *Interleaver) AppendRemote(pcm []byte) {
	if !iv.running {
		return
	}
	iv.remote = appendSamples(iv.remote, pcm)
	iv.emit()
}

// emit produces multiplexed frames while at least one side holds a full
// cadence of samples, padding the other side with silence.
func (iv *Interleaver) emit() {
	for len(iv.local) >= iv.frameSamples || len(iv.remote) >= iv.frameSamples {
		frame := make([]byte, iv.frameSamples*4)
		for i := 0; i < iv.frameSamples; i++ {
			var l, r int16
			if i < len(iv.local) {
				l = iv.local[i]
			}
			if i < len(iv.remote) {
				r = iv.remote[i]
			}
			binary.LittleEndian.PutUint16(frame[i*4:], uint16(l))
			binary.LittleEndian.PutUint16(frame[i*4+2:], uint16(r))
		}
		iv.local = consume(iv.local, iv.frameSamples)
		iv.remote = consume(iv.remote, iv.frameSamples)
		if iv.onFrame != nil {
			iv.onFrame(frame)
		}
	}
}

// appendSamples decodes little-endian int16 PCM bytes onto buf.
func appendSamples(buf []int16, pcm []byte) []int16 {
	for i := 0; i+1 < len(pcm); i += 2 {
		buf = append(buf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	return buf
}

// consume drops up to n leading samples from buf, copying the remainder to
// a fresh backing array so consumed samples do not pin memory.
func consume(buf []int16, n int) []int16 {
	if n >= len(buf) {
		return buf[:0]
	}
	fresh := make([]int16, len(buf)-n)
	copy(fresh, buf[n:])
	return fresh
}
