// Package search runs semantic queries: the query is expanded into variants,
// each variant is embedded and searched concurrently, and per-variant hits are
// merged into one ranked, deduplicated result list with provenance.
package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/obro79/Tower/internal/config"
	"github.com/obro79/Tower/internal/embedding"
	"github.com/obro79/Tower/internal/expansion"
	"github.com/obro79/Tower/internal/lifecycle"
	"github.com/obro79/Tower/internal/models"
)

// ErrAllVariantsFailed is returned when no query variant could be embedded
// and searched. Partial variant failures are tolerated.
var ErrAllVariantsFailed = errors.New("all query variants failed")

// Aggregator coordinates multi-variant semantic search.
type Aggregator struct {
	embedder embedding.Embedder
	manager  *lifecycle.Manager
	cfg      *config.SearchConfig
	logger   *zap.Logger
}

// NewAggregator creates an aggregator over the given embedder and index manager.
func NewAggregator(embedder embedding.Embedder, manager *lifecycle.Manager, cfg *config.SearchConfig, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		embedder: embedder,
		manager:  manager,
		cfg:      cfg,
		logger:   logger,
	}
}

// variantHits is the outcome of one variant's embed+search.
type variantHits struct {
	matches []lifecycle.Match
	err     error
}

// Search expands the query, embeds and searches each variant concurrently,
// and merges hits keeping each file's best distance. A file's provenance is
// the lowest-numbered variant that achieved its best distance.
func (a *Aggregator) Search(ctx context.Context, query *models.SemanticQuery) (*models.SemanticResponse, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		return nil, err
	}
	if query.TopK == 0 {
		query.TopK = a.cfg.DefaultTopK
	}
	if a.cfg.MaxTopK > 0 && query.TopK > a.cfg.MaxTopK {
		query.TopK = a.cfg.MaxTopK
	}

	expansionCount := query.ExpansionCount
	if expansionCount <= 0 {
		expansionCount = a.cfg.ExpansionCount
	}
	var variants []string
	if query.ExpansionEnabled() {
		variants = expansion.Expand(query.Query, expansionCount)
	} else {
		variants = []string{query.Query}
	}

	// Each variant over-fetches so the merged dedup still fills top-k.
	perVariantK := query.TopK * 2
	timeout := time.Duration(a.cfg.VariantTimeoutMs) * time.Millisecond

	hits := make([]variantHits, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			vctx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				vctx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}

			emb, err := a.embedder.Embed(vctx, variant)
			if err != nil {
				a.logger.Warn("variant embedding failed",
					zap.String("variant", variant), zap.Error(err))
				hits[i] = variantHits{err: err}
				return nil
			}
			matches, err := a.manager.Search(vctx, emb, perVariantK)
			if err != nil {
				a.logger.Warn("variant search failed",
					zap.String("variant", variant), zap.Error(err))
				hits[i] = variantHits{err: err}
				return nil
			}
			hits[i] = variantHits{matches: matches}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in ascending variant order. A later variant takes over a file's
	// provenance only by strictly improving its distance, so ties go to the
	// original query.
	type best struct {
		distance float64
		variant  int
	}
	merged := make(map[int64]best)
	succeeded := 0
	var firstErr error
	for i := range hits {
		if hits[i].err != nil {
			if firstErr == nil {
				firstErr = hits[i].err
			}
			continue
		}
		succeeded++
		for _, m := range hits[i].matches {
			if b, ok := merged[m.FileID]; !ok || m.Distance < b.distance {
				merged[m.FileID] = best{distance: m.Distance, variant: i}
			}
		}
	}
	if succeeded == 0 {
		return nil, errors.Join(ErrAllVariantsFailed, firstErr)
	}

	results := make([]*models.SemanticResult, 0, len(merged))
	for fileID, b := range merged {
		results = append(results, &models.SemanticResult{
			FileID:          fileID,
			SimilarityScore: SimilarityFromDistance(b.distance),
			MatchedVia:      expansion.Label(b.variant),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].SimilarityScore != results[j].SimilarityScore {
			return results[i].SimilarityScore > results[j].SimilarityScore
		}
		return results[i].FileID < results[j].FileID
	})
	if len(results) > query.TopK {
		results = results[:query.TopK]
	}

	return &models.SemanticResponse{
		Results:   results,
		Total:     len(results),
		Query:     query.Query,
		QueryTime: time.Since(start).Milliseconds(),
		Variants:  len(variants),
	}, nil
}

// SimilarityFromDistance converts a squared L2 distance to a similarity score
// in (0, 1]: exp(-distance), so distance 0 maps to 1 and the score decays
// monotonically.
func SimilarityFromDistance(distance float64) float64 {
	return math.Exp(-distance)
}
