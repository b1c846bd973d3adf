package model

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

const maxBins = 64

// Node is one split or leaf of a regression tree. Rows with
// x[Feature] <= Threshold go left.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
}

// Eval walks the tree for one imputed row
func (n *Node) Eval(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// binned holds per-feature bin codes computed once per fit.
// Bin b of feature f covers values <= edges[f][b].
type binned struct {
	edges [][]float64
	codes [][]int // [feature][row]
}

func binFeatures(X [][]float64, nCols int) *binned {
	b := &binned{edges: make([][]float64, nCols), codes: make([][]int, nCols)}
	col := make([]float64, len(X))
	for j := 0; j < nCols; j++ {
		for i, x := range X {
			col[i] = x[j]
		}
		edges := binEdges(col)
		codes := make([]int, len(X))
		for i, v := range col {
			codes[i] = sort.SearchFloat64s(edges, v)
		}
		b.edges[j], b.codes[j] = edges, codes
	}
	return b
}

// binEdges returns split candidates between distinct values, thinned to
// quantiles when a column has more than maxBins distinct values.
func binEdges(col []float64) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	var distinct []float64
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) <= 1 {
		return nil
	}

	var edges []float64
	if len(distinct) <= maxBins {
		for i := 0; i+1 < len(distinct); i++ {
			edges = append(edges, (distinct[i]+distinct[i+1])/2)
		}
		return edges
	}

	for k := 1; k < maxBins; k++ {
		q := stat.Quantile(float64(k)/maxBins, stat.Empirical, sorted, nil)
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}
	// the top edge would leave the right side empty
	if edges[len(edges)-1] >= distinct[len(distinct)-1] {
		edges = edges[:len(edges)-1]
	}
	return edges
}

// treeGrower fits one tree to per-row gradients g and hessians h.
// Leaf values are sum(g) / (sum(h) + l2).
type treeGrower struct {
	bins     *binned
	g, h     []float64
	maxDepth int
	minLeaf  int
	l2       float64
}

func (t *treeGrower) grow(idx []int, depth int) *Node {
	G, H := 0.0, 0.0
	for _, i := range idx {
		G += t.g[i]
		H += t.h[i]
	}
	leaf := &Node{Leaf: true, Value: G / (H + t.l2)}
	if depth >= t.maxDepth || len(idx) < 2*t.minLeaf {
		return leaf
	}

	parent := G * G / (H + t.l2)
	bestGain, bestF, bestBin := 1e-12, -1, -1

	for f, edges := range t.bins.edges {
		nb := len(edges) + 1
		if nb < 2 {
			continue
		}
		hg := make([]float64, nb)
		hh := make([]float64, nb)
		hc := make([]int, nb)
		codes := t.bins.codes[f]
		for _, i := range idx {
			b := codes[i]
			hg[b] += t.g[i]
			hh[b] += t.h[i]
			hc[b]++
		}

		gl, hl, cl := 0.0, 0.0, 0
		for b := 0; b < nb-1; b++ {
			gl += hg[b]
			hl += hh[b]
			cl += hc[b]
			cr := len(idx) - cl
			if cl < t.minLeaf || cr < t.minLeaf {
				continue
			}
			gr, hr := G-gl, H-hl
			gain := gl*gl/(hl+t.l2) + gr*gr/(hr+t.l2) - parent
			if gain > bestGain {
				bestGain, bestF, bestBin = gain, f, b
			}
		}
	}

	if bestF < 0 {
		return leaf
	}

	var left, right []int
	codes := t.bins.codes[bestF]
	for _, i := range idx {
		if codes[i] <= bestBin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &Node{
		Feature:   bestF,
		Threshold: t.bins.edges[bestF][bestBin],
		Left:      t.grow(left, depth+1),
		Right:     t.grow(right, depth+1),
	}
}
