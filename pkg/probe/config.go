// Probe configuration for the [zprobe] config section.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probe

import (
	"time"

	"zprobe-go-migration/pkg/config"
)

// Config holds the probe settings, immutable after load except through the
// explicit setters on ZProbe used by calibration routines.
type Config struct {
	// Pin holds the configured pin name, informational only; polarity is
	// applied by the sensor line.
	Pin       string
	InvertPin bool

	// DebounceCount is the number of extra consecutive triggered reads
	// required before a trigger is accepted.
	DebounceCount int

	// Feedrates in mm/sec.
	SlowFeedrate   float64
	FastFeedrate   float64
	ReturnFeedrate float64

	// ProbeHeight is the clearance needed for the probe not to drag, mm.
	ProbeHeight float64

	// MaxTravel is the maximum probe travel, mm. An unspecified probe
	// distance becomes twice this.
	MaxTravel float64

	// ReverseZ probes away from the bed instead of toward it.
	ReverseZ bool

	// DecelerateOnTrigger ramps speed down after trigger instead of
	// stopping dead, avoiding the Z creep seen with hard stops.
	DecelerateOnTrigger bool

	// DecelerateRunout is the travel allowed past the trigger while
	// decelerating, mm. -1 means unset, which forbids deceleration.
	DecelerateRunout float64

	// IsDelta moves all three actuators in lock-step during a probe.
	IsDelta bool

	// TickRateHz is the acceleration tick rate of the external timer.
	TickRateHz int

	// PollInterval paces the foreground wait loop. Zero polls as fast as
	// the idle hook allows (simulation); a real machine uses a bounded
	// interval so the wait is visible as a blocking call.
	PollInterval time.Duration
}

// DefaultConfig returns the defaults matching the original firmware.
func DefaultConfig() Config {
	return Config{
		DebounceCount:    0,
		SlowFeedrate:     5,
		FastFeedrate:     100,
		ReturnFeedrate:   0,
		ProbeHeight:      5.0,
		MaxTravel:        500,
		DecelerateRunout: -1,
		TickRateHz:       1000,
	}
}

// LoadConfig reads the [zprobe] section.
func LoadConfig(cfg *config.Config) (Config, error) {
	c := DefaultConfig()
	sec := cfg.SectionOrDefault("zprobe")

	var err error
	if c.Pin, err = sec.Get("probe_pin", "nc"); err != nil {
		return c, err
	}
	if c.InvertPin, err = sec.GetBool("invert_pin", false); err != nil {
		return c, err
	}
	if c.DebounceCount, err = sec.GetInt("debounce_count", 0); err != nil {
		return c, err
	}
	if c.SlowFeedrate, err = sec.GetFloat("slow_feedrate", 5); err != nil {
		return c, err
	}
	if c.FastFeedrate, err = sec.GetFloat("fast_feedrate", 100); err != nil {
		return c, err
	}
	if c.ReturnFeedrate, err = sec.GetFloat("return_feedrate", 0); err != nil {
		return c, err
	}
	if c.ProbeHeight, err = sec.GetFloat("probe_height", 5.0); err != nil {
		return c, err
	}
	if c.MaxTravel, err = sec.GetFloat("max_travel", 500); err != nil {
		return c, err
	}
	if c.ReverseZ, err = sec.GetBool("reverse_z", false); err != nil {
		return c, err
	}
	if c.DecelerateRunout, err = sec.GetFloat("decelerate_runout", -1); err != nil {
		return c, err
	}
	decel, err := sec.GetBool("decelerate_on_trigger", false)
	if err != nil {
		return c, err
	}
	// Deceleration is only allowed with a configured runout.
	c.DecelerateOnTrigger = decel && c.DecelerateRunout >= 0

	if c.IsDelta, err = sec.GetBool("delta_homing", false); err != nil {
		return c, err
	}
	return c, nil
}
