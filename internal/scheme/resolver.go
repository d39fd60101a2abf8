// Package scheme maps free-text fund names from statements to stable
// external scheme codes. The mapping store is a self-training cache: every
// confident fuzzy match is persisted under the exact statement name, so the
// next upload of the same name is an O(1) exact hit.
package scheme

import (
	"context"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"github.com/sirupsen/logrus"

	"finnest/internal/parser"
)

// UnknownCode is the storage sentinel for names that never resolved.
// Only Resolution.StorageCode produces it; callers branch on Known instead.
const UnknownCode = "UNKNOWN"

// matchThreshold is the minimum token-sort similarity (out of 100) to trust
// a fuzzy match. Below it nothing is persisted, so a bad guess never
// poisons the corpus.
const matchThreshold = 80

// Mapping is one learned (statement name -> scheme code) association.
type Mapping struct {
	SchemeName string
	SchemeCode string
	AMCName    string
	IsVerified bool
	UsageCount int
}

// Store is the persistence the resolver needs; database.Repo satisfies it.
type Store interface {
	GetMapping(ctx context.Context, schemeName string) (Mapping, bool, error)
	ListMappings(ctx context.Context) ([]Mapping, error)
	InsertMapping(ctx context.Context, m Mapping) error
	IncrementMappingUsage(ctx context.Context, schemeName string) error
}

// Resolution is the outcome of resolving one scheme name. An unresolved
// scheme carries no code, so it cannot be mistaken for a valid identifier.
type Resolution struct {
	Code  string
	Known bool
}

func Resolved(code string) Resolution { return Resolution{Code: code, Known: true} }

func Unresolved() Resolution { return Resolution{} }

// StorageCode renders the resolution as the scheme_code column value.
func (r Resolution) StorageCode() string {
	if !r.Known {
		return UnknownCode
	}
	return r.Code
}

type Resolver struct {
	store Store
	log   *logrus.Logger
}

func NewResolver(store Store, log *logrus.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve maps one statement name to a scheme code. Exact lookup runs on
// the raw name; the fuzzy pass compares the cleaned name against every
// known mapping. Store failures degrade to Unresolved rather than failing
// the caller's parse.
func (r *Resolver) Resolve(ctx context.Context, schemeName, amcHint string) Resolution {
	if schemeName == "" {
		return Unresolved()
	}

	m, ok, err := r.store.GetMapping(ctx, schemeName)
	if err != nil {
		r.log.Warnf("scheme: mapping lookup failed for %q: %v", schemeName, err)
		return Unresolved()
	}
	if ok {
		if err := r.store.IncrementMappingUsage(ctx, schemeName); err != nil {
			r.log.Warnf("scheme: usage bump failed for %q: %v", schemeName, err)
		}
		return Resolved(m.SchemeCode)
	}

	cleaned := parser.CleanSchemeName(schemeName)
	known, err := r.store.ListMappings(ctx)
	if err != nil {
		r.log.Warnf("scheme: mapping list failed: %v", err)
		return Unresolved()
	}

	bestScore := -1
	var best Mapping
	for _, cand := range known {
		score := fuzzy.TokenSortRatio(cleaned, cand.SchemeName)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}

	if bestScore >= matchThreshold {
		learned := Mapping{
			SchemeName: schemeName,
			SchemeCode: best.SchemeCode,
			AMCName:    amcHint,
			UsageCount: 1,
		}
		if err := r.store.InsertMapping(ctx, learned); err != nil {
			r.log.Warnf("scheme: could not persist learned mapping %q -> %s: %v", schemeName, best.SchemeCode, err)
		}
		return Resolved(best.SchemeCode)
	}

	r.log.Infof("scheme: unresolved %q (amc %q, best score %d) - needs manual mapping", schemeName, amcHint, bestScore)
	return Unresolved()
}

// ResolveAll resolves the distinct scheme names of a parsed batch in one
// pass, keyed by raw statement name. Parsing and resolution stay separate
// stages so the parser never blocks on the mapping store.
func (r *Resolver) ResolveAll(ctx context.Context, records []parser.HoldingRecord) map[string]Resolution {
	out := make(map[string]Resolution, len(records))
	for _, rec := range records {
		if _, done := out[rec.SchemeName]; done {
			continue
		}
		out[rec.SchemeName] = r.Resolve(ctx, rec.SchemeName, rec.AMCName)
	}
	return out
}
