package search

import (
	"context"
	"sort"
	"strings"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
)

// Request is the single normalized request the engine sends to a provider
type Request struct {
	Query      string
	MaxResults int
	SortBy     config.SortOrder
	UploadDate config.UploadDateWindow
}

// Provider is the external video-metadata search source. Implementations
// return ranked raw candidates and may honor the sort and date hints; the
// engine enforces ordering and the result cap regardless.
type Provider interface {
	Search(ctx context.Context, req Request) ([]model.VideoCandidate, error)
}

// Engine issues search requests and normalizes results
type Engine struct {
	provider Provider
}

// NewEngine creates an engine backed by the given provider
func NewEngine(provider Provider) *Engine {
	return &Engine{provider: provider}
}

// Search translates cfg into one provider request, sorts the results
// reproducibly, and caps them at cfg.MaxResults. The engine performs no
// retries; transport failures surface as *NetworkError and provider
// rejections as *ProviderError.
func (e *Engine) Search(ctx context.Context, cfg config.SearchConfig) ([]model.VideoCandidate, error) {
	if strings.TrimSpace(cfg.Query) == "" {
		return nil, &config.ConfigurationError{Field: "query", Reason: "must not be empty"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	candidates, err := e.provider.Search(ctx, Request{
		Query:      cfg.Query,
		MaxResults: cfg.MaxResults,
		SortBy:     cfg.SortBy,
		UploadDate: cfg.UploadDate,
	})
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates, cfg.SortBy)

	if len(candidates) > cfg.MaxResults {
		candidates = candidates[:cfg.MaxResults]
	}
	return candidates, nil
}

// sortCandidates orders candidates locally so identical inputs always yield
// identical output regardless of provider ordering quirks. Relevance keeps
// the provider's ranking. All other orders are stable with a candidate-ID
// tie-break.
func sortCandidates(candidates []model.VideoCandidate, by config.SortOrder) {
	var less func(a, b model.VideoCandidate) bool

	switch by {
	case config.SortByUploadDate:
		less = func(a, b model.VideoCandidate) bool {
			if !a.UploadedAt.Equal(b.UploadedAt) {
				return a.UploadedAt.After(b.UploadedAt)
			}
			return a.ID < b.ID
		}
	case config.SortByViewCount:
		less = func(a, b model.VideoCandidate) bool {
			if a.ViewCount != b.ViewCount {
				return a.ViewCount > b.ViewCount
			}
			return a.ID < b.ID
		}
	case config.SortByRating:
		less = func(a, b model.VideoCandidate) bool {
			if a.LikeCount != b.LikeCount {
				return a.LikeCount > b.LikeCount
			}
			return a.ID < b.ID
		}
	default:
		return // relevance: provider order stands
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
}
