package face

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSW graph parameters for 128-dim embeddings.
const (
	// IndexMaxNeighbors (M) is the maximum number of neighbours per node.
	IndexMaxNeighbors = 16
	// IndexEfSearch is the search candidate pool size.
	IndexEfSearch = 64
)

// Index is an approximate nearest-neighbour index over enrolled descriptors.
// It narrows the registry to a handful of candidates; the Matcher still makes
// the final decision over whatever Nearest returns.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	owners map[string]Descriptor
	order  map[string]int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		owners: make(map[string]Descriptor),
		order:  make(map[string]int),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = IndexMaxNeighbors
	g.Ml = 1.0 / float64(IndexMaxNeighbors)
	g.EfSearch = IndexEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents. Descriptors whose length differs from
// dim are skipped because the graph requires uniform vectors.
func (x *Index) Build(registry []Registered, dim int) {
	g := newGraph()
	owners := make(map[string]Descriptor, len(registry))
	order := make(map[string]int, len(registry))
	for i, r := range registry {
		if len(r.Descriptor) != dim {
			continue
		}
		vec := r.Descriptor.Clone()
		g.Add(hnsw.MakeNode(r.Owner, []float32(vec)))
		owners[r.Owner] = vec
		order[r.Owner] = i
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.graph = g
	x.owners = owners
	x.order = order
}

// Len returns the number of indexed descriptors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.owners)
}

// Nearest returns up to k registered descriptors close to query, in the
// registry order they were built from so tie-breaking stays deterministic.
func (x *Index) Nearest(query Descriptor, k int) []Registered {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.owners) == 0 || k <= 0 {
		return nil
	}
	nodes := x.graph.Search([]float32(query), k)
	out := make([]Registered, 0, len(nodes))
	for _, n := range nodes {
		d, ok := x.owners[n.Key]
		if !ok {
			continue
		}
		out = append(out, Registered{Owner: n.Key, Descriptor: d})
	}
	sortByOrder(out, x.order)
	return out
}

func sortByOrder(rs []Registered, order map[string]int) {
	// insertion sort: k is tiny
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && order[rs[j].Owner] < order[rs[j-1].Owner]; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}
