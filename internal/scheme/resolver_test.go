package scheme

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finnest/internal/parser"
)

type fakeStore struct {
	mappings map[string]Mapping
	usage    map[string]int
	inserted []Mapping
	failAll  bool
}

func newFakeStore(mappings ...Mapping) *fakeStore {
	s := &fakeStore{mappings: map[string]Mapping{}, usage: map[string]int{}}
	for _, m := range mappings {
		s.mappings[m.SchemeName] = m
	}
	return s
}

func (s *fakeStore) GetMapping(_ context.Context, name string) (Mapping, bool, error) {
	if s.failAll {
		return Mapping{}, false, errors.New("db down")
	}
	m, ok := s.mappings[name]
	return m, ok, nil
}

func (s *fakeStore) ListMappings(_ context.Context) ([]Mapping, error) {
	if s.failAll {
		return nil, errors.New("db down")
	}
	out := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeStore) InsertMapping(_ context.Context, m Mapping) error {
	if s.failAll {
		return errors.New("db down")
	}
	if _, exists := s.mappings[m.SchemeName]; !exists {
		s.mappings[m.SchemeName] = m
	}
	s.inserted = append(s.inserted, m)
	return nil
}

func (s *fakeStore) IncrementMappingUsage(_ context.Context, name string) error {
	if s.failAll {
		return errors.New("db down")
	}
	s.usage[name]++
	return nil
}

func TestResolve_ExactMatch(t *testing.T) {
	store := newFakeStore(Mapping{SchemeName: "HDFC Flexi Cap Fund - Direct Plan - Growth", SchemeCode: "118834"})
	r := NewResolver(store, logrus.New())

	res := r.Resolve(context.Background(), "HDFC Flexi Cap Fund - Direct Plan - Growth", "")
	assert.True(t, res.Known)
	assert.Equal(t, "118834", res.Code)
	assert.Equal(t, "118834", res.StorageCode())

	// Exact hits bump usage and never reach the fuzzy pass.
	assert.Equal(t, 1, store.usage["HDFC Flexi Cap Fund - Direct Plan - Growth"])
	assert.Empty(t, store.inserted)
}

func TestResolve_FuzzyMatchLearns(t *testing.T) {
	store := newFakeStore(Mapping{SchemeName: "HDFC Flexi Cap Fund", SchemeCode: "118834"})
	r := NewResolver(store, logrus.New())

	// A plan-suffix variant of the known name should match after cleaning
	// and be persisted under the raw statement spelling.
	raw := "HDFC Flexi Cap Fund - Regular Plan - Growth"
	res := r.Resolve(context.Background(), raw, "HDFC Mutual Fund")
	require.True(t, res.Known)
	assert.Equal(t, "118834", res.Code)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, raw, store.inserted[0].SchemeName)
	assert.Equal(t, "118834", store.inserted[0].SchemeCode)
	assert.Equal(t, "HDFC Mutual Fund", store.inserted[0].AMCName)

	// The learned entry turns the next resolve into an exact hit.
	res = r.Resolve(context.Background(), raw, "")
	assert.True(t, res.Known)
	assert.Equal(t, 1, store.usage[raw])
	assert.Len(t, store.inserted, 1)
}

func TestResolve_BelowThreshold(t *testing.T) {
	store := newFakeStore(Mapping{SchemeName: "HDFC Flexi Cap Fund", SchemeCode: "118834"})
	r := NewResolver(store, logrus.New())

	res := r.Resolve(context.Background(), "Quantum Gold Savings Fund", "")
	assert.False(t, res.Known)
	assert.Equal(t, UnknownCode, res.StorageCode())
	// A rejected guess must not poison the corpus.
	assert.Empty(t, store.inserted)
}

func TestResolve_EmptyName(t *testing.T) {
	r := NewResolver(newFakeStore(), logrus.New())
	res := r.Resolve(context.Background(), "", "")
	assert.False(t, res.Known)
}

func TestResolve_StoreFailureDegrades(t *testing.T) {
	store := newFakeStore(Mapping{SchemeName: "HDFC Flexi Cap Fund", SchemeCode: "118834"})
	store.failAll = true
	r := NewResolver(store, logrus.New())

	res := r.Resolve(context.Background(), "HDFC Flexi Cap Fund", "")
	assert.False(t, res.Known)
	assert.Equal(t, UnknownCode, res.StorageCode())
}

func TestResolveAll_DistinctNames(t *testing.T) {
	store := newFakeStore(Mapping{SchemeName: "HDFC Flexi Cap Fund", SchemeCode: "118834"})
	r := NewResolver(store, logrus.New())

	records := []parser.HoldingRecord{
		{SchemeName: "HDFC Flexi Cap Fund"},
		{SchemeName: "HDFC Flexi Cap Fund"},
		{SchemeName: "Some Obscure Closed-Ended Fund"},
	}
	out := r.ResolveAll(context.Background(), records)
	require.Len(t, out, 2)
	assert.True(t, out["HDFC Flexi Cap Fund"].Known)
	assert.False(t, out["Some Obscure Closed-Ended Fund"].Known)
	// Duplicate names resolve once.
	assert.Equal(t, 1, store.usage["HDFC Flexi Cap Fund"])
}
