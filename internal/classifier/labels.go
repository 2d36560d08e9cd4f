package classifier

import "signal-systemv1/internal/indicator"

// LabelRows builds the training set from usable feature rows. A row is
// labelled 1 when the close horizon bars later exceeds its own close by
// more than threshold (as a fraction). Rows without a close horizon bars
// ahead are dropped.
func LabelRows(closes []float64, rows []indicator.Row, schema []string, horizon int, threshold float64) ([][]float64, []int) {
	X := make([][]float64, 0, len(rows))
	y := make([]int, 0, len(rows))
	for _, r := range rows {
		ahead := r.Index + horizon
		if ahead >= len(closes) || closes[r.Index] == 0 {
			continue
		}
		if !r.Has(schema...) {
			continue
		}
		label := 0
		if closes[ahead]/closes[r.Index]-1 > threshold {
			label = 1
		}
		X = append(X, toRow(schema, r.Values))
		y = append(y, label)
	}
	return X, y
}
