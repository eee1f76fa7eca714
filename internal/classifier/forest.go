package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"spad-go/internal/types"
)

// AlgorithmRandomForest is the registry name of Forest.
const AlgorithmRandomForest = "random_forest"

// Tree is one fitted decision tree in array form. A node is a leaf when its
// left child is -1; otherwise samples with x[Feature] <= Threshold go left.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

// Forest is a random forest: the prediction is the class with the highest mean
// per-tree probability.
type Forest struct {
	NFeatures int                `json:"n_features"`
	Classes   []types.ClassLabel `json:"classes"`
	Trees     []Tree             `json:"trees"`
}

func LoadForest(path string) (*Forest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open forest: %w", err)
	}
	defer f.Close()
	return DecodeForest(f)
}

func DecodeForest(r io.Reader) (*Forest, error) {
	var fr Forest
	if err := json.NewDecoder(r).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := fr.Validate(); err != nil {
		return nil, err
	}
	return &fr, nil
}

// Validate checks the structure so that Predict can never index out of range or loop.
func (f *Forest) Validate() error {
	if f.NFeatures <= 0 {
		return fmt.Errorf("%w: n_features must be positive", ErrInvalidModel)
	}
	if len(f.Classes) < 2 {
		return fmt.Errorf("%w: need at least two classes, got %d", ErrInvalidModel, len(f.Classes))
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("%w: no trees", ErrInvalidModel)
	}
	for ti, t := range f.Trees {
		if err := t.validate(f.NFeatures, len(f.Classes)); err != nil {
			return fmt.Errorf("%w: tree %d: %v", ErrInvalidModel, ti, err)
		}
	}
	return nil
}

func (t Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == -1 {
			if r != -1 {
				return fmt.Errorf("node %d has only a right child", i)
			}
			if len(t.Value[i]) != nClasses {
				return fmt.Errorf("leaf %d has %d class values, want %d", i, len(t.Value[i]), nClasses)
			}
			continue
		}
		// children are numbered after their parent, which also rules out cycles
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d has out of order children %d/%d", i, l, r)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d", i, t.Feature[i])
		}
	}
	return nil
}

func (f *Forest) NumFeatures() int  { return f.NFeatures }
func (f *Forest) Algorithm() string { return AlgorithmRandomForest }

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(x), f.NFeatures)
	}
	proba := make([]float64, len(f.Classes))
	for _, t := range f.Trees {
		leaf := t.Value[t.leaf(x)]
		total := 0.0
		for _, v := range leaf {
			total += v
		}
		for c, v := range leaf {
			if total > 0 {
				proba[c] += v / total
			} else {
				proba[c] += 1 / float64(len(leaf))
			}
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

// Predict returns the most probable class; ties go to the earlier class.
func (f *Forest) Predict(x []float64) (types.ClassLabel, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	return f.Classes[best], nil
}

// leaf compares at float32 precision, the precision the trees were fitted at;
// thresholds sit between float32 values, so a float64 compare can cross them.
func (t Tree) leaf(x []float64) int {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if float64(float32(x[t.Feature[node]])) <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node
}
