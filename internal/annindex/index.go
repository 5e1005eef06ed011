// Package annindex implements the in-memory approximate-nearest-neighbor
// face index (HNSW) described for the recognition worker: a cosine graph
// of enrolled PersonFace embeddings, rebuilt from the repository on
// capacity overflow or dimension mismatch, with soft deletes via a shadow
// map (the underlying graph never truly evicts a node).
package annindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/observability"
	"github.com/technosupport/sentinel/internal/recogerr"
)

// DefaultThreshold is the index-level match gate. The recognizer layer
// separately treats similarity == 1.0 as an auto-confirm boundary; 0.8
// never appears here, matching the single threshold the source actually
// reads at search time.
const DefaultThreshold = 0.75

const (
	maxNeighbors    = 16
	efConstruction  = 200
	minInitCapacity = 100
)

// Match is one ranked index result.
type Match struct {
	PersonFaceID uuid.UUID
	PersonID     uuid.UUID
	PersonName   string
	Similarity   float32
	IsMatch      bool
}

// Loader fetches the rows an Initialize/Rebuild pulls from persistent
// storage; it is satisfied by repository.PersonFaceRepo.
type Loader interface {
	ListEnrollable(ctx context.Context) ([]EnrollableFace, error)
}

// EnrollableFace is a (person, face) pair eligible for the index: active
// person, active face, non-null embedding.
type EnrollableFace struct {
	PersonFaceID uuid.UUID
	PersonID     uuid.UUID
	PersonName   string
	Embedding    []float32
}

type entry struct {
	personFaceID uuid.UUID
	personID     uuid.UUID
	personName   string
}

// Index is the ANN face index (C1). All operations are safe for
// concurrent use: reads (Search) proceed concurrently with each other;
// writes (Add, Rebuild) take an exclusive lock so the shadow map and
// graph are never observed torn by a concurrent Search.
type Index struct {
	mu        sync.RWMutex
	graph     *hnsw.Graph[int64]
	shadow    map[int64]entry
	nextKey   int64
	dim       int
	capacity  int
	threshold float32
	loader    Loader
}

// New creates an empty index bound to loader for Initialize/Rebuild.
func New(loader Loader) *Index {
	return &Index{
		shadow:    make(map[int64]entry),
		threshold: DefaultThreshold,
		loader:    loader,
	}
}

// SetThreshold sets the match gate; callers must pass 0 <= tau <= 1.
func (idx *Index) SetThreshold(tau float32) {
	if tau < 0 {
		tau = 0
	}
	if tau > 1 {
		tau = 1
	}
	idx.mu.Lock()
	idx.threshold = tau
	idx.mu.Unlock()
}

// Initialize loads every enrollable face, discovers the embedding
// dimension from the first row, and builds the graph. Rows whose
// embedding length disagrees with the discovered dimension are skipped.
func (idx *Index) Initialize(ctx context.Context) error {
	faces, err := idx.loader.ListEnrollable(ctx)
	if err != nil {
		return fmt.Errorf("list enrollable faces: %w", err)
	}
	return idx.build(faces)
}

// Rebuild drops the current graph and reloads from persistence.
func (idx *Index) Rebuild(ctx context.Context) error {
	observability.ANNRebuilds.Inc()
	return idx.Initialize(ctx)
}

func (idx *Index) build(faces []EnrollableFace) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	dim := 0
	for _, f := range faces {
		if len(f.Embedding) > 0 {
			dim = len(f.Embedding)
			break
		}
	}

	g := hnsw.NewGraph[int64]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.CosineDistance

	shadow := make(map[int64]entry, capFor(len(faces)))
	var key int64
	skipped := 0
	for _, f := range faces {
		if len(f.Embedding) != dim || dim == 0 {
			skipped++
			continue
		}
		g.Add(hnsw.MakeNode(key, f.Embedding))
		shadow[key] = entry{personFaceID: f.PersonFaceID, personID: f.PersonID, personName: f.PersonName}
		key++
	}

	idx.graph = g
	idx.shadow = shadow
	idx.dim = dim
	idx.nextKey = key
	idx.capacity = capFor(len(faces))

	if skipped > 0 {
		slog.Warn("ann index: skipped faces with mismatched embedding dimension", "skipped", skipped, "dim", dim)
	}
	slog.Info("ann index built", "faces", len(shadow), "dim", dim, "capacity_hint", capFor(len(faces)))
	return nil
}

func capFor(n int) int {
	c := 2 * n
	if c < minInitCapacity {
		c = minInitCapacity
	}
	return c
}

// Search returns the top-k matches for query, ranked by cosine similarity.
// Stale ids (present in the graph but removed from the shadow map) are
// filtered out before k is applied, so Search may legitimately return
// fewer than k results. On a query-dimension mismatch, Search triggers one
// Rebuild and retries; a second mismatch returns an empty slice rather
// than erroring, per the ANN index's failure semantics.
func (idx *Index) Search(ctx context.Context, query []float32, k int) []Match {
	idx.mu.RLock()
	graph, dim, threshold := idx.graph, idx.dim, idx.threshold
	idx.mu.RUnlock()

	if graph == nil {
		return nil
	}
	if len(query) != dim {
		if err := idx.Rebuild(ctx); err != nil {
			slog.Error("ann index: rebuild on dimension mismatch failed", "error", err)
			return nil
		}
		idx.mu.RLock()
		graph, dim = idx.graph, idx.dim
		idx.mu.RUnlock()
		if graph == nil || len(query) != dim {
			slog.Warn("ann index: query dimension still mismatched after rebuild, returning no matches",
				"error", recogerr.ErrDimensionMismatch, "query_dim", len(query), "index_dim", dim)
			return nil
		}
	}

	return idx.search(graph, threshold, query, k)
}

func (idx *Index) search(graph *hnsw.Graph[int64], threshold float32, query []float32, k int) []Match {
	// Over-fetch to absorb ids that have since been soft-deleted from the
	// shadow map; hnsw itself has no notion of removal.
	fetch := k * 3
	if fetch < k {
		fetch = k
	}
	nodes := graph.Search(query, fetch)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]Match, 0, k)
	for _, n := range nodes {
		e, ok := idx.shadow[n.Key]
		if !ok {
			continue
		}
		sim := similarity(cosineDistance(query, n.Value))
		matches = append(matches, Match{
			PersonFaceID: e.personFaceID,
			PersonID:     e.personID,
			PersonName:   e.personName,
			Similarity:   sim,
			IsMatch:      sim >= threshold,
		})
		if len(matches) == k {
			break
		}
	}
	return matches
}

// Add inserts one newly enrolled face. If the graph is at or beyond the
// capacity fixed at the last build() (2x the face count at that time, or
// minInitCapacity), Add triggers a full Rebuild (picking up this face
// along with everything else currently in the repository, and doubling
// the capacity for the next round) before retrying the direct insert
// semantics described by the contract — in practice the Rebuild already
// incorporates the caller's write, so Add after a Rebuild is an
// idempotent no-op guard.
func (idx *Index) Add(ctx context.Context, face EnrollableFace) error {
	idx.mu.RLock()
	atCapacity := idx.graph == nil || len(idx.shadow) >= idx.capacity
	dimMismatch := idx.graph != nil && idx.dim != 0 && len(face.Embedding) != idx.dim
	idx.mu.RUnlock()

	if dimMismatch {
		if err := idx.Rebuild(ctx); err != nil {
			return fmt.Errorf("%w: rebuild on add failed: %v", recogerr.ErrDimensionMismatch, err)
		}
		return nil
	}
	if atCapacity {
		if err := idx.Rebuild(ctx); err != nil {
			return fmt.Errorf("%w: rebuild on add failed: %v", recogerr.ErrCapacityExhausted, err)
		}
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.graph == nil {
		return fmt.Errorf("ann index: graph not initialized")
	}
	key := idx.nextKey
	idx.nextKey++
	idx.graph.Add(hnsw.MakeNode(key, face.Embedding))
	idx.shadow[key] = entry{personFaceID: face.PersonFaceID, personID: face.PersonID, personName: face.PersonName}
	return nil
}

// Remove soft-deletes a PersonFace: it is dropped from the shadow map so
// Search no longer surfaces it, even though the underlying hnsw graph
// keeps the node (the library offers no true deletion).
func (idx *Index) Remove(personFaceID uuid.UUID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for key, e := range idx.shadow {
		if e.personFaceID == personFaceID {
			delete(idx.shadow, key)
			return
		}
	}
}

// Count returns the number of live (non-removed) entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.shadow)
}

func similarity(distance float64) float32 {
	s := 1 - distance/2
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	return float32(s)
}

// cosineDistance mirrors the distance metric the graph itself was built
// with (hnsw.CosineDistance), computed directly against the node's stored
// vector so Search doesn't need a second graph traversal to recover it.
// Range is [0,2]; 2 for invalid or zero-norm input.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
