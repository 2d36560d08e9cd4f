package classifier

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/config"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
)

// Source records how the run's classifier was obtained.
type Source string

const (
	SourceDisabled Source = "disabled"
	SourceArtifact Source = "artifact"
	SourceTrained  Source = "trained"
	SourceConstant Source = "constant" // too little history to train
)

// Adapter obtains a classifier once per run: from a persisted artifact if
// one is compatible, otherwise by training on the first asset that offers
// usable rows. The result is cached for every later asset.
type Adapter struct {
	cfg config.ClassifierConfig
	log zerolog.Logger
	now func() time.Time

	mu       sync.Mutex
	clf      Classifier
	source   Source
	readOnly bool
}

// NewAdapter creates an adapter. Nothing is loaded until LoadOrTrain.
func NewAdapter(cfg config.ClassifierConfig, log zerolog.Logger) *Adapter {
	return &Adapter{cfg: cfg, log: log, now: time.Now}
}

// SetReadOnly stops the adapter from writing its artifact. A classifier
// trained while read-only is still used for the run.
func (a *Adapter) SetReadOnly(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readOnly = on
}

// Source reports how the cached classifier was obtained ("" before LoadOrTrain).
func (a *Adapter) Source() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source
}

// LoadOrTrain returns the run's classifier, building it on first call.
// It never fails: a corrupt artifact degrades to training and a short
// history degrades to the constant bullish predictor, both with a warning.
func (a *Adapter) LoadOrTrain(s model.Series, rows []indicator.Row) Classifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clf != nil {
		return a.clf
	}
	a.clf, a.source = a.build(s, rows)
	a.log.Info().
		Str("classifier", a.clf.Name()).
		Str("source", string(a.source)).
		Str("trained_on", s.Symbol).
		Msg("classifier ready")
	return a.clf
}

func (a *Adapter) build(s model.Series, rows []indicator.Row) (Classifier, Source) {
	schema := indicator.Schema
	if !a.cfg.Enabled {
		return NewConstant(1), SourceDisabled
	}

	if a.cfg.ModelPath != "" {
		f, err := LoadArtifact(a.cfg.ModelPath, schema)
		switch {
		case err == nil:
			return f, SourceArtifact
		case os.IsNotExist(err):
			a.log.Debug().Str("path", a.cfg.ModelPath).Msg("no classifier artifact, training")
		default:
			a.log.Warn().Err(err).Str("path", a.cfg.ModelPath).Msg("classifier artifact unusable, retraining")
		}
	}

	X, y := LabelRows(s.Closes(), rows, schema, a.cfg.Horizon, a.cfg.Threshold)
	if len(X) < a.cfg.MinSamples {
		err := fmt.Errorf("%w: %d labelled rows, need %d", model.ErrInsufficientTrainingData, len(X), a.cfg.MinSamples)
		a.log.Warn().Err(err).Str("symbol", s.Symbol).Msg("using constant bullish classifier")
		return NewConstant(1), SourceConstant
	}

	f, err := TrainForest(schema, X, y, ForestConfig{
		Trees:    a.cfg.Trees,
		MaxDepth: a.cfg.MaxDepth,
		Seed:     a.cfg.Seed,
	})
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", s.Symbol).Msg("training failed, using constant bullish classifier")
		return NewConstant(1), SourceConstant
	}

	if a.cfg.ModelPath != "" && !a.readOnly {
		art := Artifact{
			Version:   ArtifactVersion,
			Kind:      f.Name(),
			Schema:    schema,
			Horizon:   a.cfg.Horizon,
			Threshold: a.cfg.Threshold,
			Samples:   len(X),
			TrainedAt: a.now().UTC(),
			Trees:     f.Trees,
		}
		if err := SaveArtifact(a.cfg.ModelPath, art); err != nil {
			a.log.Warn().Err(err).Str("path", a.cfg.ModelPath).Msg("classifier artifact not saved")
		}
	}
	return f, SourceTrained
}

