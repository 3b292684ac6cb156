package result

import (
	"github.com/montanaflynn/stats"

	"github.com/Brownie44l1/fiber-thresholds/internal/model"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
)

// Summary describes the predictions for one pulse width.
type Summary struct {
	PulseWidth pulse.Width
	Fibers     int

	// Regression mode.
	Min    float64
	Median float64
	Mean   float64
	Max    float64

	// Classification mode.
	Activated int
}

// Summarize reduces each pulse width of r to a Summary, in ascending pulse
// width order.
func Summarize(r Result) ([]Summary, error) {
	widths, err := r.PulseWidths()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(widths))
	for _, w := range widths {
		byFiber := r[w.Key()]
		s := Summary{PulseWidth: w, Fibers: len(byFiber)}

		var thresholds stats.Float64Data
		for _, p := range byFiber {
			if p.Mode == model.Classification {
				if p.Activated {
					s.Activated++
				}
				continue
			}
			thresholds = append(thresholds, p.Threshold)
		}

		if len(thresholds) > 0 {
			if s.Min, err = stats.Min(thresholds); err != nil {
				return nil, err
			}
			if s.Median, err = stats.Median(thresholds); err != nil {
				return nil, err
			}
			if s.Mean, err = stats.Mean(thresholds); err != nil {
				return nil, err
			}
			if s.Max, err = stats.Max(thresholds); err != nil {
				return nil, err
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// ActivatedBelow counts fibers whose threshold is under limit, or which are
// flagged active, at each pulse width. This mirrors how the visualizer
// colours fibers for a given voltage limit.
func ActivatedBelow(r Result, limit float64) map[string]int {
	out := make(map[string]int, len(r))
	for key, byFiber := range r {
		n := 0
		for _, p := range byFiber {
			if p.Mode == model.Classification {
				if p.Activated {
					n++
				}
			} else if p.Threshold < limit {
				n++
			}
		}
		out[key] = n
	}
	return out
}
