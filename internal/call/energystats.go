package call

import "time"

// EnergyStats is mutated only by Media Intake; the Interruption Detector
// reads Baseline via the interrupt.Detector it owns directly, so this
// struct exists mainly to expose the rolling window for diagnostics and
// to hold the timestamps spec.md 4.2 and 4.1 describe.
type EnergyStats struct {
	Baseline        float64
	RecentEnergies  []float64 // last N samples, N≈8
	SpeechStartAt   time.Time
	LastInterruptAt time.Time
}

const energyWindowSize = 8

// Record appends an energy sample, trimming to the rolling window size.
func (e *EnergyStats) Record(energy float64) {
	e.RecentEnergies = append(e.RecentEnergies, energy)
	if len(e.RecentEnergies) > energyWindowSize {
		e.RecentEnergies = e.RecentEnergies[len(e.RecentEnergies)-energyWindowSize:]
	}
}
