package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStormSignalsOnceOnCrossing(t *testing.T) {
	s := NewStormDetector(time.Minute, 5)
	t0 := time.Now()

	for i := 0; i < 5; i++ {
		s.Record(t0.Add(time.Duration(i) * time.Second))
		assert.False(t, s.TrySignal(t0.Add(time.Duration(i)*time.Second)))
	}

	s.Record(t0.Add(6 * time.Second))
	assert.True(t, s.TrySignal(t0.Add(6*time.Second)), "crossing the threshold fires the edge")
	assert.True(t, s.InStorm())

	s.Record(t0.Add(7 * time.Second))
	assert.False(t, s.TrySignal(t0.Add(7*time.Second)), "already signaled, no second edge")
}

func TestStormRearmAfterQuietPeriod(t *testing.T) {
	s := NewStormDetector(time.Minute, 3)
	t0 := time.Now()

	for i := 0; i < 4; i++ {
		s.Record(t0)
	}
	assert.True(t, s.TrySignal(t0))

	// Count still over threshold, re-arm refused.
	assert.False(t, s.Rearm(t0.Add(30*time.Second)))
	assert.True(t, s.InStorm())

	// Window has drained, detection re-arms and can fire again.
	assert.True(t, s.Rearm(t0.Add(2*time.Minute)))
	assert.False(t, s.InStorm())

	for i := 0; i < 4; i++ {
		s.Record(t0.Add(3 * time.Minute))
	}
	assert.True(t, s.TrySignal(t0.Add(3*time.Minute)))
}

func TestStormWindowSlides(t *testing.T) {
	s := NewStormDetector(time.Minute, 100)
	t0 := time.Now()

	for i := 0; i < 10; i++ {
		s.Record(t0.Add(time.Duration(i) * time.Second))
	}
	assert.Equal(t, 10, s.Count(t0.Add(9*time.Second)))
	assert.Equal(t, 0, s.Count(t0.Add(2*time.Minute)))
	assert.False(t, s.IsStorm(t0.Add(9*time.Second)))
}
