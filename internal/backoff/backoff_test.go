package backoff

import (
	"math/rand"
	"testing"
	"time"
)

func TestDelayFixed(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		max      time.Duration
		attempts int
		want     time.Duration
	}{
		{"two seconds unbounded attempts", 2 * time.Second, 0, 1000, 2 * time.Second},
		{"base 5 max 10", 5 * time.Second, 10 * time.Second, 0, 5 * time.Second},
		{"base exceeds max", 20 * time.Second, 10 * time.Second, 0, 10 * time.Second},
		{"zero base defaults to 1s", 0, 10 * time.Second, 0, time.Second},
		{"negative base defaults to 1s", -5, 10 * time.Second, 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Name: Fixed, Base: tt.base, Max: tt.max}
			if got := p.Delay(tt.attempts, rand.New(rand.NewSource(42))); got != tt.want {
				t.Errorf("Delay(fixed) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDelayEmptyNameIsFixed(t *testing.T) {
	p := Policy{Base: 2 * time.Second}
	if got := p.Delay(7, nil); got != 2*time.Second {
		t.Fatalf("Delay() = %v, want 2s", got)
	}
}

func TestDelayLinear(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 15 * time.Second},
		{10, 20 * time.Second},
		{-1, 5 * time.Second},
	}
	p := Policy{Name: Linear, Base: 5 * time.Second, Max: 20 * time.Second}
	for _, tt := range tests {
		if got := p.Delay(tt.attempts, nil); got != tt.want {
			t.Errorf("Delay(linear, %d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestDelayExponential(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second},
		{200, 30 * time.Second},
	}
	p := Policy{Name: Exponential, Base: time.Second, Max: 30 * time.Second}
	for _, tt := range tests {
		if got := p.Delay(tt.attempts, nil); got != tt.want {
			t.Errorf("Delay(exponential, %d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	equal := Policy{Name: ExpEqualJitter, Base: time.Second, Max: 16 * time.Second}
	full := Policy{Name: ExpFullJitter, Base: time.Second, Max: 16 * time.Second}
	for attempt := 0; attempt < 8; attempt++ {
		ceiling := exponential(time.Second, 16*time.Second, attempt)
		if d := equal.Delay(attempt, rng); d < ceiling/2 || d > ceiling {
			t.Fatalf("equal jitter %v outside [%v,%v]", d, ceiling/2, ceiling)
		}
		if d := full.Delay(attempt, rng); d < 0 || d > ceiling {
			t.Fatalf("full jitter %v outside [0,%v]", d, ceiling)
		}
	}
}

func TestDelayJitterWithoutSourceVaries(t *testing.T) {
	for _, name := range []string{ExpEqualJitter, ExpFullJitter} {
		t.Run(name, func(t *testing.T) {
			p := Policy{Name: name, Base: time.Hour, Max: time.Hour}
			first := p.Delay(0, nil)
			for i := 0; i < 20; i++ {
				if p.Delay(0, nil) != first {
					return
				}
			}
			t.Fatalf("nil source produced the same jitter %v on every call", first)
		})
	}
}
