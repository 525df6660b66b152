package audio_test

import (
	"testing"

	"github.com/tomlidgett1/duplexscribe/pkg/audio"
)

func TestShouldSuppress_DefaultTuning(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		local  float64
		remote float64
		want   bool
	}{
		{
			name:   "quiet local during remote speech is suppressed",
			local:  0.10,
			remote: 0.20,
			want:   true,
		},
		{
			name:   "loud local barges in over remote speech",
			local:  0.30,
			remote: 0.20,
			want:   false,
		},
		{
			name:   "silent remote never suppresses",
			local:  0.01,
			remote: 0.10,
			want:   false,
		},
		{
			name:   "remote exactly at threshold counts as speaking",
			local:  0.05,
			remote: 0.14,
			want:   true,
		},
		{
			name:   "local exactly at barge-in level passes",
			local:  0.23,
			remote: 0.20,
			want:   false,
		},
		{
			name:   "both silent passes",
			local:  0,
			remote: 0,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.ShouldSuppress(tt.local, tt.remote); got != tt.want {
				t.Errorf("ShouldSuppress(%v, %v) = %v, want %v", tt.local, tt.remote, got, tt.want)
			}
		})
	}
}

func TestShouldSuppress_IsDeterministic(t *testing.T) {
	t.Parallel()

	for range 10 {
		if !audio.ShouldSuppress(0.10, 0.20) {
			t.Fatal("same level pair must always yield the same decision")
		}
	}
}

func TestNewGate_CustomTuning(t *testing.T) {
	t.Parallel()

	// Raise the speech threshold so a 0.20 remote no longer counts as
	// speaking.
	g := audio.NewGate(0.25, 0, 0)
	if g.ShouldSuppress(0.10, 0.20) {
		t.Error("remote below custom threshold must not suppress")
	}
	if !g.ShouldSuppress(0.10, 0.30) {
		t.Error("remote above custom threshold should suppress quiet local")
	}
}

func TestNewGate_FloorClampsBargeLevel(t *testing.T) {
	t.Parallel()

	// With a low ratio the product ratio*remote can fall below the floor;
	// the floor must still apply.
	g := audio.NewGate(0.01, 0.5, 1.0)
	if !g.ShouldSuppress(0.3, 0.02) {
		t.Error("local below the absolute floor must be suppressed during remote speech")
	}
	if g.ShouldSuppress(0.6, 0.02) {
		t.Error("local above the absolute floor must pass")
	}
}
