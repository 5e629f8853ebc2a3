package store

import (
	"math"
	"time"

	"github.com/argosight/livetrack/pkg/model"
)

// minVolatilitySamples is the minimum retained sample count before speed
// volatility is computable. Below it volatility is nil, never zero.
const minVolatilitySamples = 4

// series holds one entity's bounded time-ordered history.
type series struct {
	samples []model.HistorySample
}

// append adds a sample and evicts everything older than the retention window.
// Samples must advance in time: a sample not newer than the tail is dropped,
// which keeps the series strictly ordered and dedupes re-observed points held
// over from a failed refresh.
func (s *series) append(sample model.HistorySample, cutoff time.Time) {
	if n := len(s.samples); n > 0 && !sample.Timestamp.After(s.samples[n-1].Timestamp) {
		s.evict(cutoff)
		return
	}
	s.samples = append(s.samples, sample)
	s.evict(cutoff)
}

func (s *series) evict(cutoff time.Time) {
	i := 0
	for i < len(s.samples) && !s.samples[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0:0], s.samples[i:]...)
	}
}

// volatility returns the population standard deviation of the retained speed
// samples, or nil when too few are held.
func (s *series) volatility() *float64 {
	if len(s.samples) < minVolatilitySamples {
		return nil
	}
	var sum float64
	for _, sp := range s.samples {
		sum += sp.SpeedKt
	}
	mean := sum / float64(len(s.samples))

	var sq float64
	for _, sp := range s.samples {
		d := sp.SpeedKt - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(len(s.samples)))
	return &sd
}

// copySamples returns a defensive copy so callers can never mutate the
// store's internals through a returned slice.
func (s *series) copySamples() []model.HistorySample {
	out := make([]model.HistorySample, len(s.samples))
	copy(out, s.samples)
	return out
}
