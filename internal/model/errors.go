package model

import "errors"

// Per-asset failures. These are isolated: the run records the asset as
// skipped (or degrades) and moves on.
var (
	// ErrDataUnavailable means no provider returned usable bars for an asset.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrFeatureComputation means the series was too short or degenerate to
	// yield usable indicator rows.
	ErrFeatureComputation = errors.New("feature computation failed")

	// ErrModelLoad means a persisted classifier artifact was corrupt or
	// incompatible; the adapter falls back to training.
	ErrModelLoad = errors.New("model load failed")

	// ErrInsufficientTrainingData means fewer labelled rows than the minimum
	// sample count; the adapter falls back to the constant predictor.
	ErrInsufficientTrainingData = errors.New("insufficient training data")

	// ErrSchemaMismatch means a feature vector does not match the schema the
	// classifier was trained on. Never padded, always a hard error.
	ErrSchemaMismatch = errors.New("feature schema mismatch")

	// ErrNotificationFailure means every configured channel failed.
	ErrNotificationFailure = errors.New("notification failed")
)

// Run-level failures. These abort the run with a non-zero exit status.
var (
	// ErrStateUnavailable means the persisted SignalState could not be read or written.
	ErrStateUnavailable = errors.New("signal state unavailable")

	// ErrRunLocked means another run currently owns the SignalState.
	ErrRunLocked = errors.New("another run holds the state lock")
)
