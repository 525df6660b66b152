package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
)

// risingPCM returns n little-endian int16 samples counting up from start.
func risingPCM(start int16, n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(start+int16(i)))
	}
	return pcm
}

// sampleAt decodes the int16 at sample index i of a mono-packed byte slice.
func sampleAt(b []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(b[i*2:]))
}

// newTestInterleaver creates an interleaver with a 16-sample frame and
// records every emitted frame.
func newTestInterleaver(t *testing.T) (*audio.Interleaver, *[][]byte) {
	t.Helper()
	var frames [][]byte
	iv := audio.NewInterleaver(audio.DefaultFormat, time.Millisecond, func(frame []byte) {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		frames = append(frames, cp)
	})
	return iv, &frames
}

func TestInterleaver_PairsLocalAndRemote(t *testing.T) {
	t.Parallel()

	iv, frames := newTestInterleaver(t)
	iv.Start()
	iv.AppendLocal(risingPCM(100, 16))
	iv.AppendRemote(risingPCM(200, 16))

	if len(*frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(*frames))
	}
	frame := (*frames)[0]
	if len(frame) != 16*4 {
		t.Fatalf("frame length = %d, want %d", len(frame), 16*4)
	}
	// Sample-interleaved: [local0, remote0, local1, remote1, ...]
	for i := 0; i < 16; i++ {
		if got := sampleAt(frame, i*2); got != int16(100+i) {
			t.Errorf("channel 0 sample %d = %d, want %d", i, got, 100+i)
		}
		if got := sampleAt(frame, i*2+1); got != int16(200+i) {
			t.Errorf("channel 1 sample %d = %d, want %d", i, got, 200+i)
		}
	}
}

func TestInterleaver_PadsSilentSide(t *testing.T) {
	t.Parallel()

	iv, frames := newTestInterleaver(t)
	iv.Start()
	iv.AppendRemote(risingPCM(300, 16))

	if len(*frames) != 1 {
		t.Fatalf("got %d frames, want 1: one-sided speech must not stall the stream", len(*frames))
	}
	frame := (*frames)[0]
	for i := 0; i < 16; i++ {
		if got := sampleAt(frame, i*2); got != 0 {
			t.Errorf("channel 0 sample %d = %d, want silence", i, got)
		}
		if got := sampleAt(frame, i*2+1); got != int16(300+i) {
			t.Errorf("channel 1 sample %d = %d, want %d", i, got, 300+i)
		}
	}
}

func TestInterleaver_BuffersUntilFullFrame(t *testing.T) {
	t.Parallel()

	iv, frames := newTestInterleaver(t)
	iv.Start()
	iv.AppendLocal(risingPCM(0, 10))
	if len(*frames) != 0 {
		t.Fatalf("got %d frames before a full cadence accumulated, want 0", len(*frames))
	}

	iv.AppendLocal(risingPCM(10, 10))
	if len(*frames) != 1 {
		t.Fatalf("got %d frames after 20 samples, want 1", len(*frames))
	}
	// 4 samples remain buffered; they belong to the next frame.
	iv.AppendLocal(risingPCM(20, 12))
	if len(*frames) != 2 {
		t.Fatalf("got %d frames after 32 samples, want 2", len(*frames))
	}
	if got := sampleAt((*frames)[1], 0); got != 16 {
		t.Errorf("second frame starts at sample %d, want 16", got)
	}
}

func TestInterleaver_StopDiscardsPartialFrame(t *testing.T) {
	t.Parallel()

	iv, frames := newTestInterleaver(t)
	iv.Start()
	iv.AppendLocal(risingPCM(500, 10))
	iv.Stop()

	if len(*frames) != 0 {
		t.Fatalf("got %d frames, want 0: partial frames are dropped on stop", len(*frames))
	}

	// A new session must not see the discarded remainder.
	iv.Start()
	iv.AppendLocal(risingPCM(0, 16))
	if len(*frames) != 1 {
		t.Fatalf("got %d frames after restart, want 1", len(*frames))
	}
	if got := sampleAt((*frames)[0], 0); got != 0 {
		t.Errorf("first sample after restart = %d, want 0 (no stale remainder)", got)
	}
}

func TestInterleaver_DropsAudioWhileStopped(t *testing.T) {
	t.Parallel()

	iv, frames := newTestInterleaver(t)
	iv.AppendLocal(risingPCM(0, 16))
	iv.AppendRemote(risingPCM(0, 16))

	if len(*frames) != 0 {
		t.Fatalf("got %d frames before Start, want 0", len(*frames))
	}
}
