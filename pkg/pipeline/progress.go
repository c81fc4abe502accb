package pipeline

import "math"

// Composite progress bands, in percent of the whole run. Sections share one
// band evenly; the whole-document verify and improve passes get fixed bands.
const (
	sectionsBand   = 80.0
	docVerifyBand  = 10.0
	docImproveBand = 10.0
)

// Sub-weights within one section's share of the sections band.
const (
	genWeight    = 0.4
	verifyWeight = 0.3
	refineWeight = 0.3
)

// ProgressFunc receives composite progress values in [0,100].
type ProgressFunc func(percent int)

// progressTracker clamps reported progress to be monotonically
// non-decreasing for the life of one run, regardless of retries.
type progressTracker struct {
	report   ProgressFunc
	reported int
}

func newProgressTracker(report ProgressFunc) *progressTracker {
	return &progressTracker{report: report, reported: -1}
}

// emit reports raw (rounded and clamped) and returns the reported value.
func (p *progressTracker) emit(raw float64) int {
	v := int(math.Round(raw))
	if v > 100 {
		v = 100
	}
	if v < p.reported {
		v = p.reported
	}
	if v != p.reported {
		p.reported = v
		if p.report != nil {
			p.report(v)
		}
	}
	return p.reported
}

// finish forces the terminal value.
func (p *progressTracker) finish() {
	p.emit(100)
}

// sectionBase returns the progress floor for section i of n.
func sectionBase(i, n int) float64 {
	return sectionsBand * float64(i) / float64(n)
}

// sectionShare returns one section's slice of the sections band.
func sectionShare(n int) float64 {
	return sectionsBand / float64(n)
}
