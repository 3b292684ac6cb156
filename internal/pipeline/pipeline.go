package pipeline

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/fiber-thresholds/internal/centering"
	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/features"
	"github.com/Brownie44l1/fiber-thresholds/internal/field"
	"github.com/Brownie44l1/fiber-thresholds/internal/model"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
	"github.com/Brownie44l1/fiber-thresholds/internal/result"
	"github.com/Brownie44l1/fiber-thresholds/internal/tract"
)

// Model is what a run needs from a loaded threshold model.
type Model interface {
	model.Predictor
	Layout() features.Layout
	PulseWidths() []pulse.Width
	BatchSize() int
}

// Job is the in-memory part of a run: fibers already parsed and a sampler
// and model already loaded.
type Job struct {
	Fibers   []tract.Fiber
	Sampler  field.Sampler
	Model    Model
	Strategy centering.Strategy
	Workers  int
	// BatchSize is the number of fibers per Predict call. 0 uses the
	// model's preferred size.
	BatchSize int
}

// Report describes a finished or failed run.
type Report struct {
	RunID       string
	Stage       Stage
	Fibers      int
	PulseWidths []pulse.Width
	Result      result.Result
	Summaries   []result.Summary
}

// NewRunID returns a time-ordered identifier for log correlation.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run executes a whole prediction run: load inputs, center and sample every
// fiber, predict for every pulse width, and write the result. Nothing is
// written unless every fiber has a prediction for every pulse width.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rep := Report{RunID: NewRunID()}
	t := newTracker(logger.With("run_id", rep.RunID), Init)
	t.logger.Info("starting run",
		"tract_file", cfg.TractFile,
		"electrode_file", cfg.ElectrodeFile,
		"model_dir", cfg.ModelDir,
		"tract_type", cfg.TractType,
		"centering", cfg.Strategy.String(),
		"conductivity", cfg.Conductivity.String(),
		"mode", cfg.Mode.String(),
		"workers", cfg.Workers)

	failed := func(err error) (Report, error) {
		err = t.fail(err)
		rep.Stage = t.stage
		return rep, err
	}

	var (
		fibers []tract.Fiber
		fld    *field.Field
		m      *model.Model
	)
	defer func() {
		if m != nil {
			m.Close()
		}
	}()

	var g errgroup.Group
	g.Go(func() error {
		var err error
		fibers, err = tract.ReadFile(cfg.TractFile)
		return err
	})
	g.Go(func() error {
		var err error
		fld, err = field.ReadFile(cfg.ElectrodeFile)
		return err
	})
	g.Go(func() error {
		var err error
		m, err = model.Load(cfg.ModelDir, cfg.TractType, cfg.Mode, model.LoadOptions{
			ORTLibraryPath: cfg.ORTLibraryPath,
			BatchSize:      cfg.BatchSize,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return failed(err)
	}

	sampler, err := field.NewSampler(fld, cfg.Conductivity)
	if err != nil {
		return failed(err)
	}

	rep.Fibers = len(fibers)
	rep.PulseWidths = m.PulseWidths()
	if err := t.advance(Loaded,
		"fibers", len(fibers),
		"field_samples", fld.Len(),
		"field_grid", fld.IsGrid(),
		"pulse_widths", len(rep.PulseWidths)); err != nil {
		return failed(err)
	}

	res, err := t.process(ctx, Job{
		Fibers:    fibers,
		Sampler:   sampler,
		Model:     m,
		Strategy:  cfg.Strategy,
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		return failed(err)
	}
	rep.Result = res

	// The JSON result goes last so it only exists after a successful run.
	if cfg.XLSXFile != "" {
		if err := result.WriteXLSX(cfg.XLSXFile, res, len(fibers)); err != nil {
			return failed(err)
		}
	}
	if err := result.WriteFile(cfg.OutputFile, res); err != nil {
		if cfg.XLSXFile != "" {
			os.Remove(cfg.XLSXFile)
		}
		return failed(err)
	}
	if err := t.advance(Written, "output", cfg.OutputFile, "xlsx", cfg.XLSXFile); err != nil {
		return failed(err)
	}
	rep.Stage = t.stage

	rep.Summaries, err = result.Summarize(res)
	if err != nil {
		// Output is already written.
		t.logger.Warn("failed to summarize result", "error", err)
		return rep, nil
	}
	for _, s := range rep.Summaries {
		logSummary(t.logger, cfg.Mode, s)
	}
	return rep, nil
}

func logSummary(logger *slog.Logger, mode model.Mode, s result.Summary) {
	if mode == model.Classification {
		logger.Info("pulse width summary",
			"pulse_width", s.PulseWidth.Key(),
			"fibers", s.Fibers,
			"activated", s.Activated)
		return
	}
	logger.Info("pulse width summary",
		"pulse_width", s.PulseWidth.Key(),
		"fibers", s.Fibers,
		"min", s.Min,
		"median", s.Median,
		"mean", s.Mean,
		"max", s.Max)
}

// Process runs the in-memory stages of a run for already loaded inputs and
// returns the complete result.
func Process(ctx context.Context, job Job, logger *slog.Logger) (result.Result, error) {
	t := newTracker(logger, Loaded)
	res, err := t.process(ctx, job)
	if err != nil {
		return nil, t.fail(err)
	}
	return res, nil
}

func (t *tracker) process(ctx context.Context, job Job) (result.Result, error) {
	if job.Model == nil || job.Sampler == nil {
		return nil, errors.InvalidConfiguration("job needs a model and a sampler")
	}
	workers := job.Workers
	if workers < 1 {
		workers = 1
	}
	layout := job.Model.Layout()

	centered := make([]centering.Centered, len(job.Fibers))
	if err := forEach(ctx, workers, len(job.Fibers), func(i int) error {
		c, err := centering.Center(job.Fibers[i], job.Sampler, job.Strategy)
		if err != nil {
			return err
		}
		centered[i] = c
		return nil
	}); err != nil {
		return nil, err
	}

	short := 0
	for _, c := range centered {
		if !c.Valid(layout.SpatialValues) {
			short++
		}
	}
	if err := t.advance(Centered, "strategy", job.Strategy.String(), "windows_clipped", short); err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(centered))
	if err := forEach(ctx, workers, len(centered), func(i int) error {
		v, err := features.Extract(centered[i], layout)
		if err != nil {
			return err
		}
		vectors[i] = v
		return nil
	}); err != nil {
		return nil, err
	}
	if err := t.advance(Sampled, "features_per_fiber", layout.Len()); err != nil {
		return nil, err
	}

	widths := job.Model.PulseWidths()
	agg, err := result.NewAggregator(len(vectors), widths)
	if err != nil {
		return nil, err
	}
	if err := predictAll(ctx, job, workers, vectors, widths, agg); err != nil {
		return nil, err
	}
	if err := t.advance(Predicted, "pulse_widths", len(widths)); err != nil {
		return nil, err
	}

	res, err := agg.Finalize()
	if err != nil {
		return nil, err
	}
	if err := t.advance(Aggregated); err != nil {
		return nil, err
	}
	return res, nil
}

// predictAll fans out one Predict call per batch of fibers and pulse width.
// Each call adds its own slice of the result, so completion order does not
// matter.
func predictAll(ctx context.Context, job Job, workers int, vectors [][]float64, widths []pulse.Width, agg *result.Aggregator) error {
	if len(vectors) == 0 {
		return nil
	}
	step := job.BatchSize
	if step <= 0 {
		step = job.Model.BatchSize()
	}
	if step <= 0 {
		step = len(vectors)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, pw := range widths {
		for start := 0; start < len(vectors); start += step {
			end := min(start+step, len(vectors))
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				preds, err := job.Model.Predict(gctx, vectors[start:end], pw)
				if err != nil {
					return errors.Wrapf(err, "fibers %d-%d at pulse width %s", start, end-1, pw.Key())
				}
				if len(preds) != end-start {
					return errors.Newf(errors.CodeInternalError,
						"model returned %d predictions for %d fibers at pulse width %s", len(preds), end-start, pw.Key())
				}
				idx := make([]int, end-start)
				for k := range idx {
					idx[k] = start + k
				}
				return agg.AddBatch(pw, idx, preds)
			})
		}
	}
	return g.Wait()
}

// forEach calls fn for 0..n-1 on at most workers goroutines and returns the
// first error. Remaining calls are skipped once one fails.
func forEach(ctx context.Context, workers, n int, fn func(i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	return g.Wait()
}
