// Package interrupt implements the per-session barge-in detector (C2):
// an adaptive-baseline energy threshold armed only while the agent is
// speaking, producing a single edge-triggered cancel signal.
package interrupt

import "time"

// Config holds the detector's tunable parameters (spec-driven, all
// configuration-overridable per agent).
type Config struct {
	Enabled         bool
	MinEnergy       float64
	BaselineFactor  float64
	MinSpeechMs     int64
	DebounceMs      int64
	RequiredSamples int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MinEnergy:       500,
		BaselineFactor:  2.0,
		MinSpeechMs:     100,
		DebounceMs:      300,
		RequiredSamples: 2,
	}
}

// Detector tracks the rolling baseline and high-energy window for one
// session. It is owned and mutated only by the Media Intake goroutine
// that feeds it frames; no other goroutine touches it.
type Detector struct {
	cfg Config

	baseline        float64
	window          []bool // recent above-threshold samples, most-recent last
	speechStartAt   time.Time
	lastInterruptAt time.Time
	armed           bool // true while phase == Responding
	firedThisArm    bool
}

// NewDetector creates a detector with the given config and an initial
// baseline noise floor.
func NewDetector(cfg Config, initialBaseline float64) *Detector {
	return &Detector{
		cfg:      cfg,
		baseline: initialBaseline,
		window:   make([]bool, 0, cfg.RequiredSamples),
	}
}

// Baseline returns the current rolling noise floor.
func (d *Detector) Baseline() float64 {
	return d.baseline
}

// UpdateBaseline folds a new energy sample into the rolling baseline.
// Call only while the agent is not speaking (phase != Responding), per
// spec.md 4.1 step 3.
func (d *Detector) UpdateBaseline(energy float64) {
	d.baseline = 0.95*d.baseline + 0.05*energy
	if d.baseline < 50 {
		d.baseline = 50
	}
}

// Arm enables the detector for a new Responding phase. The detector
// fires at most once per arm; it must be re-armed after firing.
func (d *Detector) Arm() {
	d.armed = true
	d.firedThisArm = false
	d.window = d.window[:0]
	d.speechStartAt = time.Time{}
}

// Disarm disables the detector (phase left Responding).
func (d *Detector) Disarm() {
	d.armed = false
}

// Process feeds one frame's energy at time now and reports whether a
// cancel should fire. It always reports false while disarmed, so
// callers outside Responding can simply not call it.
func (d *Detector) Process(energy float64, now time.Time) bool {
	if !d.armed || !d.cfg.Enabled || d.firedThisArm {
		return false
	}

	threshold := d.cfg.MinEnergy
	if b := d.baseline * d.cfg.BaselineFactor; b > threshold {
		threshold = b
	}

	above := energy > threshold
	if above {
		if d.speechStartAt.IsZero() {
			d.speechStartAt = now
		}
	} else {
		d.speechStartAt = time.Time{}
	}
	d.window = append(d.window, above)
	if len(d.window) > d.cfg.RequiredSamples {
		d.window = d.window[len(d.window)-d.cfg.RequiredSamples:]
	}

	if !d.allAbove() {
		return false
	}
	if d.speechStartAt.IsZero() {
		return false
	}
	if now.Sub(d.speechStartAt) < time.Duration(d.cfg.MinSpeechMs)*time.Millisecond {
		return false
	}
	if !d.lastInterruptAt.IsZero() && now.Sub(d.lastInterruptAt) < time.Duration(d.cfg.DebounceMs)*time.Millisecond {
		return false
	}

	d.lastInterruptAt = now
	d.firedThisArm = true
	d.window = d.window[:0]
	return true
}

func (d *Detector) allAbove() bool {
	if len(d.window) < d.cfg.RequiredSamples {
		return false
	}
	for _, v := range d.window {
		if !v {
			return false
		}
	}
	return true
}
