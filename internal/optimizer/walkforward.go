package optimizer

import (
	"context"
	"fmt"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/metrics"
	"quantlab/internal/strategy"
)

// Minimum bar counts for a usable fold.
const (
	MinFoldBars  = 30
	MinTrainBars = 20
	MinTestBars  = 10
)

// OverfittingDecay is the decay above which a run is flagged as overfit.
const OverfittingDecay = 0.5

// Confidence levels of a walk-forward summary.
const (
	ConfidenceNormal = "normal"
	ConfidenceLow    = "low"
)

// Fold is the outcome of one train/test split.
type Fold struct {
	Fold       int             `json:"fold"`
	TrainStart time.Time       `json:"train_start"`
	TrainEnd   time.Time       `json:"train_end"`
	TestStart  time.Time       `json:"test_start"`
	TestEnd    time.Time       `json:"test_end"`
	TrainBars  int             `json:"train_bars"`
	TestBars   int             `json:"test_bars"`
	BestParams strategy.Params `json:"best_params"`
	Train      Score           `json:"train"`
	Test       Score           `json:"test"`
}

// WalkForwardSummary aggregates the usable folds. With no usable folds it
// carries low confidence, an insufficient-data warning and no overfitting
// verdict.
type WalkForwardSummary struct {
	Strategy       strategy.Kind `json:"strategy"`
	Symbol         string        `json:"symbol"`
	Target         Metric        `json:"target_metric"`
	Splits         int           `json:"n_splits"`
	TrainRatio     float64       `json:"train_ratio"`
	Folds          []Fold        `json:"folds"`
	AvgTrainReturn float64       `json:"avg_train_return"`
	AvgTestReturn  float64       `json:"avg_test_return"`
	Decay          *float64      `json:"decay,omitempty"`
	Overfitting    bool          `json:"overfitting"`
	Confidence     string        `json:"confidence"`
	Warning        string        `json:"warning,omitempty"`
}

// Empty reports whether no fold was usable.
func (s *WalkForwardSummary) Empty() bool { return s == nil || len(s.Folds) == 0 }

// WalkForward splits series into contiguous folds, grid-searches each
// training prefix and replays the best parameters on the matching test
// suffix. Progress is reported per fold.
func (o *Optimizer) WalkForward(ctx context.Context, name string, space ParamSpace, series domain.Series) (*WalkForwardSummary, error) {
	kind, err := strategy.ParseKind(name)
	if err != nil {
		return nil, err
	}
	if err := space.Validate(); err != nil {
		return nil, err
	}

	n := series.Len()
	splitSize := n / o.cfg.NSplits
	trainSize := int(float64(splitSize) * o.cfg.TrainRatio)
	tracker := NewTracker(o.cfg.NSplits, o.progress)

	var folds []Fold
	for i := 0; i < o.cfg.NSplits; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("walk forward %s: %w", kind, err)
		}
		fold, ok, err := o.runFold(ctx, kind, space, series, i, splitSize, trainSize)
		if err != nil {
			return nil, err
		}
		if ok {
			folds = append(folds, fold)
		}
		tracker.Add(1)
	}

	summary := summarize(folds)
	summary.Strategy = kind
	summary.Symbol = series.Symbol
	summary.Target = o.cfg.TargetMetric
	summary.Splits = o.cfg.NSplits
	summary.TrainRatio = o.cfg.TrainRatio

	if summary.Overfitting {
		o.log.Warn(summary.Warning, "strategy", kind, "symbol", series.Symbol)
	}
	o.log.Info("walk forward complete",
		"strategy", kind,
		"symbol", series.Symbol,
		"folds", len(folds),
		"avg_train_return", summary.AvgTrainReturn,
		"avg_test_return", summary.AvgTestReturn,
		"overfitting", summary.Overfitting,
	)
	return summary, nil
}

// runFold evaluates fold i. It returns ok=false for folds that are too
// short or whose grid search produced no rows.
func (o *Optimizer) runFold(ctx context.Context, kind strategy.Kind, space ParamSpace, series domain.Series, i, splitSize, trainSize int) (Fold, bool, error) {
	n := series.Len()
	start := i * splitSize
	end := min(start+splitSize, n)
	if end-start < MinFoldBars {
		o.log.Debug("skipping short fold", "fold", i+1, "bars", end-start)
		return Fold{}, false, nil
	}

	trainEnd := min(start+trainSize, end)
	train := series.Slice(start, trainEnd)
	test := series.Slice(trainEnd, end)
	if train.Len() < MinTrainBars || test.Len() < MinTestBars {
		o.log.Debug("skipping unbalanced fold", "fold", i+1, "train", train.Len(), "test", test.Len())
		return Fold{}, false, nil
	}

	grid, err := o.gridSearch(ctx, string(kind), space, train, nil)
	if err != nil {
		return Fold{}, false, err
	}
	best, ok := grid.Best()
	if !ok {
		o.log.Warn("fold has no usable combinations", "fold", i+1, "failures", len(grid.Failures))
		return Fold{}, false, nil
	}

	testScore, err := o.runSingle(strategy.Config{Name: string(kind), Params: best.Params}, test)
	if err != nil {
		o.log.Warn("fold test run failed", "fold", i+1, "params", best.Params, "error", err)
		return Fold{}, false, nil
	}

	return Fold{
		Fold:       i + 1,
		TrainStart: train.First(),
		TrainEnd:   train.Last(),
		TestStart:  test.First(),
		TestEnd:    test.Last(),
		TrainBars:  train.Len(),
		TestBars:   test.Len(),
		BestParams: best.Params,
		Train:      best.Score,
		Test:       testScore,
	}, true, nil
}

func summarize(folds []Fold) *WalkForwardSummary {
	s := &WalkForwardSummary{Folds: folds}
	if len(folds) == 0 {
		s.Folds = []Fold{}
		s.Confidence = ConfidenceLow
		s.Warning = "insufficient data for walk-forward evaluation"
		return s
	}
	s.Confidence = ConfidenceNormal

	var train, test float64
	for _, f := range folds {
		train += f.Train.TotalReturn
		test += f.Test.TotalReturn
	}
	avgTrain := train / float64(len(folds))
	avgTest := test / float64(len(folds))
	s.AvgTrainReturn = metrics.Round(avgTrain, 4)
	s.AvgTestReturn = metrics.Round(avgTest, 4)

	if avgTrain > 0 {
		decay := 1 - avgTest/avgTrain
		rounded := metrics.Round(decay, 4)
		s.Decay = &rounded
		if decay > OverfittingDecay {
			s.Overfitting = true
			s.Warning = fmt.Sprintf(
				"overfitting: average train return %.2f%%, average test return %.2f%%, decay %.0f%% > %.0f%%",
				avgTrain*100, avgTest*100, decay*100, OverfittingDecay*100)
		}
	}
	return s
}
