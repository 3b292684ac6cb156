// Package result collects per-fiber predictions into the threshold document
// the visualizer reads and writes it atomically.
package result

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/model"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
)

// Result maps a pulse width key ("0.06") to a fiber index key ("0") to the
// prediction for that fiber.
type Result map[string]map[string]model.Prediction

// Get returns the prediction for a pulse width and fiber.
func (r Result) Get(pw pulse.Width, fiber int) (model.Prediction, bool) {
	byFiber, ok := r[pw.Key()]
	if !ok {
		return model.Prediction{}, false
	}
	p, ok := byFiber[strconv.Itoa(fiber)]
	return p, ok
}

// PulseWidths returns the pulse widths present, in ascending order.
func (r Result) PulseWidths() ([]pulse.Width, error) {
	out := make([]pulse.Width, 0, len(r))
	for key := range r {
		w, err := pulse.ParseKey(key)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Aggregator accumulates predictions from concurrent workers. It is the
// only mutable state shared between them.
type Aggregator struct {
	mu         sync.Mutex
	fiberCount int
	widths     []pulse.Width
	values     map[pulse.Width][]model.Prediction
	filled     map[pulse.Width][]bool
	frozen     bool
}

// NewAggregator prepares slots for fiberCount fibers at every pulse width.
func NewAggregator(fiberCount int, widths []pulse.Width) (*Aggregator, error) {
	if fiberCount < 0 {
		return nil, errors.InvalidConfiguration("negative fiber count %d", fiberCount)
	}
	if err := pulse.Validate(widths); err != nil {
		return nil, err
	}

	a := &Aggregator{
		fiberCount: fiberCount,
		widths:     append([]pulse.Width(nil), widths...),
		values:     make(map[pulse.Width][]model.Prediction, len(widths)),
		filled:     make(map[pulse.Width][]bool, len(widths)),
	}
	for _, w := range widths {
		a.values[w] = make([]model.Prediction, fiberCount)
		a.filled[w] = make([]bool, fiberCount)
	}
	return a, nil
}

// Add records one prediction. Unknown pulse widths, out-of-range fibers and
// repeated entries are errors.
func (a *Aggregator) Add(pw pulse.Width, fiber int, v model.Prediction) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return errors.New(errors.CodeInternalError, "aggregator already finalized")
	}
	filled, ok := a.filled[pw]
	if !ok {
		return errors.InvalidConfiguration("pulse width %s is not part of this run", pw)
	}
	if fiber < 0 || fiber >= a.fiberCount {
		return errors.Newf(errors.CodeInternalError, "fiber index %d out of range [0, %d)", fiber, a.fiberCount)
	}
	if filled[fiber] {
		return errors.Newf(errors.CodeInternalError, "duplicate prediction for fiber %d at %s", fiber, pw)
	}

	filled[fiber] = true
	a.values[pw][fiber] = v
	return nil
}

// AddBatch records predictions for consecutive entries of fibers.
func (a *Aggregator) AddBatch(pw pulse.Width, fibers []int, vs []model.Prediction) error {
	if len(fibers) != len(vs) {
		return errors.Newf(errors.CodeInternalError, "%d fibers but %d predictions at %s", len(fibers), len(vs), pw)
	}
	for i, fiber := range fibers {
		if err := a.Add(pw, fiber, vs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Finalize checks that every fiber has a prediction at every pulse width
// and freezes the aggregator.
func (a *Aggregator) Finalize() (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var missing []string
	for _, w := range a.widths {
		for fiber, ok := range a.filled[w] {
			if !ok {
				missing = append(missing, fmt.Sprintf("%s/%d", w.Key(), fiber))
			}
		}
	}
	if len(missing) > 0 {
		shown := missing
		if len(shown) > 10 {
			shown = shown[:10]
		}
		return nil, errors.IncompleteResult("%d of %d entries missing (pulse width/fiber): %s",
			len(missing), len(a.widths)*a.fiberCount, strings.Join(shown, ", "))
	}

	r := make(Result, len(a.widths))
	for _, w := range a.widths {
		byFiber := make(map[string]model.Prediction, a.fiberCount)
		for fiber, v := range a.values[w] {
			byFiber[strconv.Itoa(fiber)] = v
		}
		r[w.Key()] = byFiber
	}
	a.frozen = true
	return r, nil
}

// Validate checks that r holds exactly fibers 0..fiberCount-1 under every
// one of widths.
func Validate(r Result, fiberCount int, widths []pulse.Width) error {
	if len(r) != len(widths) {
		return errors.IncompleteResult("result has %d pulse widths, want %d", len(r), len(widths))
	}
	for _, w := range widths {
		byFiber, ok := r[w.Key()]
		if !ok {
			return errors.IncompleteResult("result is missing pulse width %s", w.Key())
		}
		if len(byFiber) != fiberCount {
			return errors.IncompleteResult("pulse width %s has %d fibers, want %d", w.Key(), len(byFiber), fiberCount)
		}
		for fiber := 0; fiber < fiberCount; fiber++ {
			if _, ok := byFiber[strconv.Itoa(fiber)]; !ok {
				return errors.IncompleteResult("pulse width %s is missing fiber %d", w.Key(), fiber)
			}
		}
	}
	return nil
}
