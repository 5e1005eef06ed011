package annindex

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	faces []EnrollableFace
}

func (f *fakeLoader) ListEnrollable(ctx context.Context) ([]EnrollableFace, error) {
	return f.faces, nil
}

func unit(x float32) []float32 { return []float32{x, 1 - x, 0} }

func TestInitializeThenSearchFindsExactMatch(t *testing.T) {
	pf := uuid.New()
	person := uuid.New()
	loader := &fakeLoader{faces: []EnrollableFace{
		{PersonFaceID: pf, PersonID: person, PersonName: "Alice", Embedding: []float32{1, 0, 0}},
		{PersonFaceID: uuid.New(), PersonID: uuid.New(), PersonName: "Bob", Embedding: []float32{0, 1, 0}},
	}}
	idx := New(loader)
	require.NoError(t, idx.Initialize(context.Background()))

	matches := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.Len(t, matches, 1)
	require.Equal(t, pf, matches[0].PersonFaceID)
	require.True(t, matches[0].Similarity >= 0.999)
	require.True(t, matches[0].IsMatch)
}

func TestInitializeSkipsMismatchedDimensionRows(t *testing.T) {
	pf := uuid.New()
	loader := &fakeLoader{faces: []EnrollableFace{
		{PersonFaceID: pf, PersonID: uuid.New(), PersonName: "Alice", Embedding: []float32{1, 0, 0}},
		{PersonFaceID: uuid.New(), PersonID: uuid.New(), PersonName: "Malformed", Embedding: []float32{1, 0}},
	}}
	idx := New(loader)
	require.NoError(t, idx.Initialize(context.Background()))
	require.Equal(t, 1, idx.Count())
}

func TestRemoveFiltersStaleIDsAtSearchTime(t *testing.T) {
	pf := uuid.New()
	loader := &fakeLoader{faces: []EnrollableFace{
		{PersonFaceID: pf, PersonID: uuid.New(), PersonName: "Alice", Embedding: []float32{1, 0, 0}},
	}}
	idx := New(loader)
	require.NoError(t, idx.Initialize(context.Background()))

	idx.Remove(pf)
	require.Equal(t, 0, idx.Count())

	matches := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.Empty(t, matches)
}

func TestAddInsertsNewFaceBelowCapacity(t *testing.T) {
	loader := &fakeLoader{faces: make([]EnrollableFace, 0, 200)}
	for i := 0; i < 200; i++ {
		loader.faces = append(loader.faces, EnrollableFace{
			PersonFaceID: uuid.New(), PersonID: uuid.New(), PersonName: "p", Embedding: []float32{float32(i), 0, 0},
		})
	}
	idx := New(loader)
	require.NoError(t, idx.Initialize(context.Background()))

	newFace := EnrollableFace{PersonFaceID: uuid.New(), PersonID: uuid.New(), PersonName: "New", Embedding: []float32{42, 42, 42}}
	loader.faces = append(loader.faces, newFace)

	require.NoError(t, idx.Add(context.Background(), newFace))
	require.Equal(t, 201, idx.Count())
}

func TestAddAtCapacityTriggersRebuild(t *testing.T) {
	loader := &fakeLoader{faces: []EnrollableFace{
		{PersonFaceID: uuid.New(), PersonID: uuid.New(), PersonName: "p0", Embedding: []float32{0, 0, 0}},
	}}
	idx := New(loader)
	require.NoError(t, idx.Initialize(context.Background()))
	require.Equal(t, 1, idx.Count())

	// Force the index to its fixed build-time capacity without 99 real
	// inserts: the next Add must see shadow length >= capacity and rebuild
	// rather than recomputing a cap that can never be reached.
	idx.mu.Lock()
	idx.capacity = idx.Count()
	idx.mu.Unlock()

	newFace := EnrollableFace{PersonFaceID: uuid.New(), PersonID: uuid.New(), PersonName: "New", Embedding: []float32{1, 1, 1}}
	loader.faces = append(loader.faces, newFace)

	require.NoError(t, idx.Add(context.Background(), newFace))
	require.Equal(t, 2, idx.Count(), "rebuild must reload from the loader, picking up the new face")

	matches := idx.Search(context.Background(), []float32{1, 1, 1}, 1)
	require.Len(t, matches, 1)
	require.Equal(t, newFace.PersonFaceID, matches[0].PersonFaceID)
}

func TestSetThresholdClamps(t *testing.T) {
	idx := New(&fakeLoader{})
	idx.SetThreshold(-1)
	require.Equal(t, float32(0), idx.threshold)
	idx.SetThreshold(5)
	require.Equal(t, float32(1), idx.threshold)
}
