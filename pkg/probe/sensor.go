package probe

import "sync/atomic"

// SensorLine reads the probe switch with its configured polarity applied.
// The invert flag can be toggled at runtime (M670 I on the original), so it
// is atomic: the wait loop and the straight-probe sampler both read it.
type SensorLine struct {
	read   func() bool
	invert atomic.Bool
}

// NewSensorLine wraps a raw pin read with the configured polarity.
func NewSensorLine(read func() bool, invert bool) *SensorLine {
	s := &SensorLine{read: read}
	s.invert.Store(invert)
	return s
}

// Triggered reads the line with polarity applied.
func (s *SensorLine) Triggered() bool {
	v := s.read()
	if s.invert.Load() {
		return !v
	}
	return v
}

// IsInverting reports the current polarity override.
func (s *SensorLine) IsInverting() bool {
	return s.invert.Load()
}

// SetInverting sets the polarity override.
func (s *SensorLine) SetInverting(invert bool) {
	s.invert.Store(invert)
}
