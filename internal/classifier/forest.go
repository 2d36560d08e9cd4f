package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"signal-systemv1/internal/indicator"
)

// ForestConfig controls random forest training.
type ForestConfig struct {
	Trees    int
	MaxDepth int
	Seed     int64
}

// node is one split or leaf of a decision tree. Trees are stored flat in
// pre-order, so a child index is always greater than its parent's.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Prob      float64 `json:"p"` // fraction of label 1 among training samples at this node
	Leaf      bool    `json:"leaf,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t tree) predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Prob
}

// validate checks that the tree can be walked without panicking.
func (t tree) validate(features int) error {
	if len(t.Nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= features {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("node %d: child index %d out of range", i, c)
			}
		}
	}
	return nil
}

// Forest is a bagged ensemble of gini decision trees. Prediction averages
// the leaf probabilities of all trees.
type Forest struct {
	Features []string
	Trees    []tree
}

func (f *Forest) Name() string     { return "forest" }
func (f *Forest) Schema() []string { return f.Features }

func (f *Forest) Predict(v indicator.Vector) (Prediction, error) {
	if err := checkSchema(f.Features, v); err != nil {
		return Prediction{}, err
	}
	x := toRow(f.Features, v)
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(x)
	}
	p := sum / float64(len(f.Trees))
	label := 0
	if p > 0.5 {
		label = 1
	}
	return Prediction{Label: label, Probability: p, Voted: true}, nil
}

// TrainForest fits a random forest. Each tree sees a bootstrap sample and
// considers sqrt(features) random candidates per split. The same inputs
// and seed always produce the same forest.
func TrainForest(schema []string, X [][]float64, y []int, cfg ForestConfig) (*Forest, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("train forest: %d samples, %d labels", len(X), len(y))
	}
	for i, row := range X {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("train forest: sample %d has %d features, want %d", i, len(row), len(schema))
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	mtry := int(math.Sqrt(float64(len(schema))))
	if mtry < 1 {
		mtry = 1
	}

	f := &Forest{Features: schema, Trees: make([]tree, 0, cfg.Trees)}
	for t := 0; t < cfg.Trees; t++ {
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = rng.Intn(len(X))
		}
		b := &treeBuilder{X: X, y: y, mtry: mtry, maxDepth: cfg.MaxDepth, rng: rng}
		b.grow(sample, 0)
		f.Trees = append(f.Trees, tree{Nodes: b.nodes})
	}
	return f, nil
}

type treeBuilder struct {
	X        [][]float64
	y        []int
	mtry     int
	maxDepth int
	rng      *rand.Rand
	nodes    []node
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	p := float64(pos) / float64(len(idx))

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{Leaf: true, Prob: p})
	if depth >= b.maxDepth || pos == 0 || pos == len(idx) || len(idx) < 2 {
		return id
	}

	feat, thr, ok := b.bestSplit(idx, gini(pos, len(idx)))
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = node{Feature: feat, Threshold: thr, Left: l, Right: r, Prob: p}
	return id
}

// bestSplit scans mtry random features for the threshold with the lowest
// weighted gini impurity. ok is false when no split improves on parent.
func (b *treeBuilder) bestSplit(idx []int, parent float64) (feat int, thr float64, ok bool) {
	n := len(idx)
	best := parent - 1e-12
	sorted := make([]int, n)

	for _, f := range b.rng.Perm(len(b.X[0]))[:b.mtry] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool { return b.X[sorted[i]][f] < b.X[sorted[j]][f] })

		total := 0
		for _, i := range sorted {
			total += b.y[i]
		}

		leftPos := 0
		for k := 0; k < n-1; k++ {
			leftPos += b.y[sorted[k]]
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			leftN := k + 1
			rightN := n - leftN
			imp := (float64(leftN)*gini(leftPos, leftN) + float64(rightN)*gini(total-leftPos, rightN)) / float64(n)
			if imp < best {
				best, feat, thr, ok = imp, f, (lo+hi)/2, true
			}
		}
	}
	return feat, thr, ok
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
