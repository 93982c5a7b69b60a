package clustering

import (
	"fmt"
	"math"
	"sort"

	"github.com/rcliao/commentlens/internal/core"
)

// maxLambda stands in for 1/0 when two points are at distance zero.
const maxLambda = 1e12

// HDBSCAN is a density-based clusterer. It labels each vector with a
// cluster id >= 0 or core.NoiseCluster and discovers the number of
// clusters itself.
type HDBSCAN struct {
	// MinSamples is the neighbourhood size for core distances, counting
	// the point itself. Zero uses the minimum cluster size.
	MinSamples int
	Metric     Metric
}

// NewHDBSCAN creates a clusterer with the given metric.
func NewHDBSCAN(metric Metric) *HDBSCAN {
	return &HDBSCAN{Metric: metric}
}

type mstEdge struct {
	a, b   int
	weight float64
}

// merge is one internal node of the single-linkage tree. Node ids below n
// are points; merge i has node id n+i.
type merge struct {
	left, right int
	distance    float64
	size        int
}

type condensedEdge struct {
	parent, child int
	lambda        float64
	size          int
}

// Cluster returns one label per vector, in input order. Fewer vectors
// than minClusterSize are all noise.
func (h *HDBSCAN) Cluster(vectors [][]float32, minClusterSize int) ([]int, error) {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = core.NoiseCluster
	}

	if minClusterSize < 2 {
		minClusterSize = 2
	}
	if n < minClusterSize {
		return labels, nil
	}

	points, err := toFloat64(vectors)
	if err != nil {
		return nil, err
	}

	minSamples := h.MinSamples
	if minSamples <= 0 {
		minSamples = minClusterSize
	}
	if minSamples > n {
		minSamples = n
	}

	dist := pairwiseDistances(points, h.Metric.distance())
	coreDist := coreDistances(dist, minSamples)
	edges := primMST(dist, coreDist)
	tree := singleLinkage(n, edges)
	condensed := condenseTree(n, tree, minClusterSize)
	selected := selectClusters(n, condensed)

	return labelPoints(n, condensed, selected, labels), nil
}

func toFloat64(vectors [][]float32) ([][]float64, error) {
	dim := len(vectors[0])
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		row := make([]float64, dim)
		for j, f := range v {
			row[j] = float64(f)
		}
		out[i] = row
	}
	return out, nil
}

func pairwiseDistances(points [][]float64, distance func(a, b []float64) float64) [][]float64 {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := distance(points[i], points[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// coreDistances returns, per point, the distance to its k-th nearest
// neighbour with the point itself counted as the first.
func coreDistances(dist [][]float64, k int) []float64 {
	out := make([]float64, len(dist))
	row := make([]float64, len(dist))
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		out[i] = row[k-1]
	}
	return out
}

// primMST builds the minimum spanning tree of the mutual reachability
// graph. Ties go to the lowest point index.
func primMST(dist [][]float64, coreDist []float64) []mstEdge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	inTree[0] = true

	for len(edges) < n-1 {
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			mr := math.Max(dist[current][j], math.Max(coreDist[current], coreDist[j]))
			if mr < best[j] {
				best[j] = mr
				from[j] = current
			}
		}

		next := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (next == -1 || best[j] < best[next]) {
				next = j
			}
		}

		edges = append(edges, mstEdge{a: from[next], b: next, weight: best[next]})
		inTree[next] = true
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].weight < edges[j].weight
	})
	return edges
}

func singleLinkage(n int, edges []mstEdge) []merge {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	size := func(node int, tree []merge) int {
		if node < n {
			return 1
		}
		return tree[node-n].size
	}

	tree := make([]merge, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + len(tree)
		tree = append(tree, merge{
			left:     ra,
			right:    rb,
			distance: e.weight,
			size:     size(ra, tree) + size(rb, tree),
		})
		parent[ra] = node
		parent[rb] = node
	}
	return tree
}

// condenseTree walks the single-linkage tree from the root and keeps only
// splits where both sides have at least minClusterSize points. Condensed
// cluster ids start at n; the root is n. A child id is always larger than
// its parent's.
func condenseTree(n int, tree []merge, minClusterSize int) []condensedEdge {
	size := func(node int) int {
		if node < n {
			return 1
		}
		return tree[node-n].size
	}

	var leaves func(node int, out []int) []int
	leaves = func(node int, out []int) []int {
		if node < n {
			return append(out, node)
		}
		m := tree[node-n]
		out = leaves(m.left, out)
		return leaves(m.right, out)
	}

	type frame struct{ node, label int }
	root := 2*n - 2
	nextLabel := n + 1
	stack := []frame{{node: root, label: n}}
	var out []condensedEdge

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node < n {
			continue
		}

		m := tree[f.node-n]
		lambda := maxLambda
		if m.distance > 0 {
			lambda = math.Min(1/m.distance, maxLambda)
		}

		leftSize, rightSize := size(m.left), size(m.right)
		switch {
		case leftSize >= minClusterSize && rightSize >= minClusterSize:
			for _, child := range []int{m.left, m.right} {
				label := nextLabel
				nextLabel++
				out = append(out, condensedEdge{parent: f.label, child: label, lambda: lambda, size: size(child)})
				stack = append(stack, frame{node: child, label: label})
			}
		case leftSize < minClusterSize && rightSize < minClusterSize:
			for _, p := range leaves(f.node, nil) {
				out = append(out, condensedEdge{parent: f.label, child: p, lambda: lambda, size: 1})
			}
		case leftSize < minClusterSize:
			for _, p := range leaves(m.left, nil) {
				out = append(out, condensedEdge{parent: f.label, child: p, lambda: lambda, size: 1})
			}
			stack = append(stack, frame{node: m.right, label: f.label})
		default:
			for _, p := range leaves(m.right, nil) {
				out = append(out, condensedEdge{parent: f.label, child: p, lambda: lambda, size: 1})
			}
			stack = append(stack, frame{node: m.left, label: f.label})
		}
	}
	return out
}

// selectClusters picks clusters by excess of mass. The root is never
// selected, so data without any split is all noise.
func selectClusters(n int, condensed []condensedEdge) map[int]bool {
	birth := map[int]float64{n: 0}
	children := map[int][]int{}
	maxLabel := n
	for _, e := range condensed {
		if e.child >= n {
			birth[e.child] = e.lambda
			children[e.parent] = append(children[e.parent], e.child)
			if e.child > maxLabel {
				maxLabel = e.child
			}
		}
	}

	stability := make(map[int]float64, len(birth))
	for _, e := range condensed {
		stability[e.parent] += (e.lambda - birth[e.parent]) * float64(e.size)
	}

	selected := map[int]bool{}
	var deselect func(int)
	deselect = func(c int) {
		for _, ch := range children[c] {
			delete(selected, ch)
			deselect(ch)
		}
	}

	for c := maxLabel; c > n; c-- {
		if _, ok := birth[c]; !ok {
			continue
		}
		subs := children[c]
		if len(subs) == 0 {
			selected[c] = true
			continue
		}
		var subtree float64
		for _, ch := range subs {
			subtree += stability[ch]
		}
		if subtree > stability[c] {
			stability[c] = subtree
		} else {
			selected[c] = true
			deselect(c)
		}
	}
	return selected
}

func labelPoints(n int, condensed []condensedEdge, selected map[int]bool, labels []int) []int {
	parentOf := map[int]int{}
	for _, e := range condensed {
		parentOf[e.child] = e.parent
	}

	ids := make([]int, 0, len(selected))
	for c := range selected {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	outLabel := make(map[int]int, len(ids))
	for i, c := range ids {
		outLabel[c] = i
	}

	for p := 0; p < n; p++ {
		c, ok := parentOf[p]
		for ok {
			if selected[c] {
				labels[p] = outLabel[c]
				break
			}
			c, ok = parentOf[c]
		}
	}
	return labels
}
