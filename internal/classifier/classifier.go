// Package classifier supplies the optional bullish/bearish vote used to
// confirm BUY signals.
//
// Two variants exist: a random forest trained on labelled feature rows and
// persisted as a JSON artifact, and a constant predictor used when the
// classifier is disabled or there is too little history to train on.
package classifier

import (
	"fmt"
	"sort"

	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
)

// Prediction is the classifier output for one feature vector.
type Prediction struct {
	Label       int     // 1 = bullish, 0 = not bullish
	Probability float64 // estimated probability of label 1
	Voted       bool    // false for the constant predictor
}

// Bullish reports whether the prediction confirms an entry.
func (p Prediction) Bullish() bool { return p.Label == 1 }

// Classifier predicts a label from a feature vector.
type Classifier interface {
	// Name identifies the variant ("forest", "constant").
	Name() string

	// Schema returns the ordered feature names the classifier expects.
	Schema() []string

	// Predict fails with ErrSchemaMismatch when v does not carry exactly Schema.
	Predict(v indicator.Vector) (Prediction, error)
}

// Constant always predicts the same label.
type Constant struct {
	Label    int
	Features []string
}

// NewConstant returns a constant predictor over the default feature schema.
func NewConstant(label int) *Constant {
	return &Constant{Label: label, Features: indicator.Schema}
}

func (c *Constant) Name() string     { return "constant" }
func (c *Constant) Schema() []string { return c.Features }

func (c *Constant) Predict(v indicator.Vector) (Prediction, error) {
	if err := checkSchema(c.Features, v); err != nil {
		return Prediction{}, err
	}
	return Prediction{Label: c.Label, Probability: float64(c.Label)}, nil
}

// checkSchema requires v to carry exactly the schema features.
// Vectors are never padded or truncated.
func checkSchema(schema []string, v indicator.Vector) error {
	var missing []string
	for _, name := range schema {
		if _, ok := v[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", model.ErrSchemaMismatch, missing)
	}
	if len(v) != len(schema) {
		var extra []string
		for name := range v {
			if !contains(schema, name) {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return fmt.Errorf("%w: unexpected %v", model.ErrSchemaMismatch, extra)
	}
	return nil
}

// toRow orders a validated vector by schema.
func toRow(schema []string, v indicator.Vector) []float64 {
	out := make([]float64, len(schema))
	for i, name := range schema {
		out[i] = v[name]
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func sameSchema(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
