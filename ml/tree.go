package ml

import (
	"fmt"
	"math"
	"sort"
)

const leaf = -1

// Node is one entry of a flattened regression tree. Leaves have
// Feature == -1; internal nodes send x[Feature] <= Threshold to Left.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
}

// RegressionTree is a CART tree grown with the squared-error criterion.
// MaxDepth 0 means unlimited.
type RegressionTree struct {
	MaxDepth       int
	MinSamplesLeaf int
	Nodes          []Node
}

type treeBuilder struct {
	tree *RegressionTree
	rows [][]float64
	y    []float64
}

// Fit grows the tree on the given sample of row indexes. The sample may
// repeat rows, which is how bootstrap weighting is expressed.
func (t *RegressionTree) Fit(rows [][]float64, y []float64, sample []int) error {
	if len(rows) != len(y) {
		return fmt.Errorf("tree: %d rows but %d targets", len(rows), len(y))
	}
	if len(sample) == 0 {
		return fmt.Errorf("tree: empty sample")
	}
	if t.MinSamplesLeaf < 1 {
		t.MinSamplesLeaf = 1
	}
	t.Nodes = t.Nodes[:0]
	b := treeBuilder{tree: t, rows: rows, y: y}
	idx := append([]int(nil), sample...)
	b.grow(idx, 0)
	return nil
}

func (t *RegressionTree) Fitted() bool {
	return len(t.Nodes) > 0
}

func (t *RegressionTree) Predict(x []float64) float64 {
	n := 0
	for {
		node := &t.Nodes[n]
		if node.Feature == leaf {
			return node.Value
		}
		if x[node.Feature] <= node.Threshold {
			n = node.Left
		} else {
			n = node.Right
		}
	}
}

func (t *RegressionTree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(n int) int
	walk = func(n int) int {
		node := t.Nodes[n]
		if node.Feature == leaf {
			return 0
		}
		return 1 + max(walk(node.Left), walk(node.Right))
	}
	return walk(0)
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.tree.Nodes)
	var sum float64
	for _, i := range idx {
		sum += b.y[i]
	}
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature: leaf,
		Value:   sum / float64(len(idx)),
		Samples: len(idx),
	})

	if b.tree.MaxDepth > 0 && depth >= b.tree.MaxDepth {
		return id
	}
	if len(idx) < 2*b.tree.MinSamplesLeaf || b.constantTarget(idx) {
		return id
	}

	feature, threshold, nLeft, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	// Partition idx in place on the chosen split.
	sort.Slice(idx, func(a, c int) bool {
		return b.rows[idx[a]][feature] < b.rows[idx[c]][feature]
	})
	left := b.grow(idx[:nLeft], depth+1)
	right := b.grow(idx[nLeft:], depth+1)

	node := &b.tree.Nodes[id]
	node.Feature = feature
	node.Threshold = threshold
	node.Left = left
	node.Right = right
	return id
}

func (b *treeBuilder) constantTarget(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit maximizes sumL²/nL + sumR²/nR, which is equivalent to
// minimizing the summed squared error of the two children.
func (b *treeBuilder) bestSplit(idx []int, total float64) (feature int, threshold float64, nLeft int, ok bool) {
	n := len(idx)
	minLeaf := b.tree.MinSamplesLeaf
	best := total * total / float64(n)
	const eps = 1e-12

	order := append([]int(nil), idx...)
	features := len(b.rows[idx[0]])
	for f := 0; f < features; f++ {
		sort.Slice(order, func(a, c int) bool {
			return b.rows[order[a]][f] < b.rows[order[c]][f]
		})
		var sumLeft float64
		for k := 0; k < n-1; k++ {
			sumLeft += b.y[order[k]]
			nl := k + 1
			if nl < minLeaf || n-nl < minLeaf {
				continue
			}
			lo, hi := b.rows[order[k]][f], b.rows[order[k+1]][f]
			if lo >= hi {
				continue
			}
			sumRight := total - sumLeft
			score := sumLeft*sumLeft/float64(nl) + sumRight*sumRight/float64(n-nl)
			if score > best+eps*max(1, math.Abs(best)) {
				best = score
				feature, nLeft, ok = f, nl, true
				threshold = lo/2 + hi/2
				if threshold >= hi {
					threshold = lo
				}
			}
		}
	}
	return feature, threshold, nLeft, ok
}
