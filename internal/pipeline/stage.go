package pipeline

import (
	"log/slog"
	"time"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Stage is the position of a run in its lifecycle. A run only moves forward,
// one stage at a time, or to Failed.
type Stage int

const (
	Init Stage = iota
	Loaded
	Centered
	Sampled
	Predicted
	Aggregated
	Written
	Failed
)

func (s Stage) String() string {
	switch s {
	case Init:
		return "init"
	case Loaded:
		return "loaded"
	case Centered:
		return "centered"
	case Sampled:
		return "sampled"
	case Predicted:
		return "predicted"
	case Aggregated:
		return "aggregated"
	case Written:
		return "written"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// tracker holds the stage of one run and logs its transitions.
type tracker struct {
	logger  *slog.Logger
	stage   Stage
	started time.Time
}

func newTracker(logger *slog.Logger, stage Stage) *tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &tracker{logger: logger, stage: stage, started: time.Now()}
}

func (t *tracker) advance(next Stage, attrs ...any) error {
	if t.stage == Failed || next != t.stage+1 {
		return errors.Newf(errors.CodeInternalError, "illegal stage transition %s -> %s", t.stage, next)
	}
	t.stage = next
	t.logger.Info("stage reached",
		append([]any{"stage", next.String(), "elapsed", time.Since(t.started).Round(time.Millisecond)}, attrs...)...)
	return nil
}

func (t *tracker) fail(err error) error {
	t.logger.Error("run failed", "stage", t.stage.String(), "code", errors.GetCode(err), "error", err)
	t.stage = Failed
	return err
}
