package search

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
)

const (
	ytInitialDataMarker = "var ytInitialData = "
	ytMaxResponseBytes  = 4 * 1024 * 1024
	ytUserAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// YouTubeProvider searches the YouTube results page and parses the embedded
// ytInitialData payload. Requests are rate limited to stay under the
// provider's informal thresholds.
type YouTubeProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	now     func() time.Time
}

// NewYouTubeProvider creates a provider with a 20s request timeout and a
// 2 req/s rate limit.
func NewYouTubeProvider() *YouTubeProvider {
	return &YouTubeProvider{
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		baseURL: "https://www.youtube.com",
		now:     time.Now,
	}
}

// Search performs one results-page request and normalizes the renderers
// found in the response.
func (p *YouTubeProvider) Search(ctx context.Context, req Request) ([]model.VideoCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Err: err}
	}

	q := url.Values{}
	q.Set("search_query", req.Query)
	if sp := searchParams(req.SortBy, req.UploadDate); sp != "" {
		q.Set("sp", sp)
	}
	searchURL := p.baseURL + "/results?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("User-Agent", ytUserAgent)
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Reason: "rate limited"}
	}
	if resp.StatusCode >= 400 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, ytMaxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	idx := strings.Index(string(body), ytInitialDataMarker)
	if idx < 0 {
		// A well-formed 200 without the payload means the request was
		// served a block or consent page.
		return nil, &ProviderError{Reason: "search results payload not found in response"}
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		return nil, &ProviderError{Reason: "malformed search results payload"}
	}

	candidates := extractCandidates(jsonData, req.MaxResults, p.now())
	slog.Debug("youtube search",
		slog.String("query", req.Query),
		slog.Int("candidates", len(candidates)))
	return candidates, nil
}

// classifyTransportError wraps transport failures as NetworkError; context
// cancellation surfaces unchanged so callers can distinguish it.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.As(err, new(*net.OpError)) || errors.As(err, new(*net.DNSError)) {
		return &NetworkError{Err: err}
	}
	// url.Error wraps most client-side failures
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &NetworkError{Err: err}
	}
	return err
}

// searchParams builds the results-page "sp" parameter for the requested
// sort order and upload window. The parameter is a base64 protobuf:
// field 1 is the sort order, field 2 a filter submessage whose field 1 is
// the upload window.
func searchParams(sortBy config.SortOrder, window config.UploadDateWindow) string {
	sortVal := map[config.SortOrder]byte{
		config.SortByRating:     1,
		config.SortByUploadDate: 2,
		config.SortByViewCount:  3,
	}[sortBy]
	windowVal := map[config.UploadDateWindow]byte{
		config.UploadDateHour:  1,
		config.UploadDateToday: 2,
		config.UploadDateWeek:  3,
		config.UploadDateMonth: 4,
		config.UploadDateYear:  5,
	}[window]

	var buf []byte
	if sortVal != 0 {
		buf = append(buf, 0x08, sortVal)
	}
	if windowVal != 0 {
		buf = append(buf, 0x12, 0x02, 0x08, windowVal)
	}
	if len(buf) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf)
}
