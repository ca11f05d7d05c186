package search

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ytget/yt-search-downloader/internal/model"
)

// videoRenderer mirrors the subset of the YouTube results-page JSON a
// candidate is built from.
type videoRenderer struct {
	VideoID string `json:"videoId"`
	Title   struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"title"`
	OwnerText struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"ownerText"`
	DescriptionSnippet *struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"descriptionSnippet"`
	LengthText *struct {
		SimpleText string `json:"simpleText"`
	} `json:"lengthText"`
	ViewCountText *struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"viewCountText"`
	PublishedTimeText *struct {
		SimpleText string `json:"simpleText"`
	} `json:"publishedTimeText"`
	Thumbnail struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
	Badges []struct {
		MetadataBadgeRenderer struct {
			Style string `json:"style"`
			Label string `json:"label"`
		} `json:"metadataBadgeRenderer"`
	} `json:"badges"`
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by
// tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	var prev byte
	for i, c := range b {
		if inStr {
			if c == '"' && prev != '\\' {
				inStr = false
			}
		} else {
			switch c {
			case '"':
				inStr = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return b[:i+1]
				}
			}
		}
		prev = c
	}
	return nil
}

// extractCandidates recursively walks the results-page JSON for
// videoRenderer entries and normalizes each into a VideoCandidate.
func extractCandidates(data []byte, limit int, now time.Time) []model.VideoCandidate {
	var results []model.VideoCandidate
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(results) >= limit {
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj["videoRenderer"]; ok {
				var vr videoRenderer
				if err := json.Unmarshal(raw, &vr); err == nil && vr.VideoID != "" {
					results = append(results, candidateFromRenderer(vr, now))
				}
			}
			for _, child := range obj {
				if len(results) >= limit {
					return
				}
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, child := range arr {
				if len(results) >= limit {
					return
				}
				walk(child)
			}
		}
	}
	walk(data)
	return results
}

// candidateFromRenderer normalizes one raw renderer into a VideoCandidate
func candidateFromRenderer(vr videoRenderer, now time.Time) model.VideoCandidate {
	c := model.VideoCandidate{ID: vr.VideoID}

	if len(vr.Title.Runs) > 0 {
		c.Title = vr.Title.Runs[0].Text
	}
	if len(vr.OwnerText.Runs) > 0 {
		c.Uploader = vr.OwnerText.Runs[0].Text
	}
	if vr.DescriptionSnippet != nil {
		var parts []string
		for _, r := range vr.DescriptionSnippet.Runs {
			parts = append(parts, r.Text)
		}
		c.Description = strings.Join(parts, "")
	}
	if vr.LengthText != nil {
		c.Duration = parseDurationText(vr.LengthText.SimpleText)
	}
	if vr.ViewCountText != nil {
		text := vr.ViewCountText.SimpleText
		if text == "" && len(vr.ViewCountText.Runs) > 0 {
			// Live streams report "N watching" as runs instead of simpleText.
			text = vr.ViewCountText.Runs[0].Text
			c.IsLive = true
		}
		c.ViewCount = parseViewCount(text)
	}
	if vr.PublishedTimeText != nil {
		c.UploadedAt = parsePublishedTime(vr.PublishedTimeText.SimpleText, now)
	}
	if len(vr.Thumbnail.Thumbnails) > 0 {
		c.Thumbnail = vr.Thumbnail.Thumbnails[len(vr.Thumbnail.Thumbnails)-1].URL
	}
	for _, b := range vr.Badges {
		if strings.Contains(b.MetadataBadgeRenderer.Style, "LIVE") ||
			strings.EqualFold(b.MetadataBadgeRenderer.Label, "live") {
			c.IsLive = true
		}
	}
	return c
}

// parseDurationText converts "1:02:34" or "12:34" into seconds
func parseDurationText(text string) int {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// parseViewCount converts "1,234,567 views", "1.2M views" or "No views"
// into a count.
func parseViewCount(text string) int64 {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(strings.ToLower(text), "no ") {
		return 0
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	raw := strings.ReplaceAll(fields[0], ",", "")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(raw, "K"):
		multiplier, raw = 1_000, strings.TrimSuffix(raw, "K")
	case strings.HasSuffix(raw, "M"):
		multiplier, raw = 1_000_000, strings.TrimSuffix(raw, "M")
	case strings.HasSuffix(raw, "B"):
		multiplier, raw = 1_000_000_000, strings.TrimSuffix(raw, "B")
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(n * float64(multiplier))
}

// parsePublishedTime converts a relative timestamp such as "3 weeks ago"
// or "Streamed 2 days ago" into an absolute time anchored at now. Returns
// the zero time when the text is not recognized.
func parsePublishedTime(text string, now time.Time) time.Time {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "Streamed"))
	fields := strings.Fields(text)
	if len(fields) < 3 || fields[len(fields)-1] != "ago" {
		return time.Time{}
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}
	}

	unit := strings.TrimSuffix(fields[1], "s")
	switch unit {
	case "second":
		return now.Add(-time.Duration(n) * time.Second)
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	case "year":
		return now.AddDate(-n, 0, 0)
	}
	return time.Time{}
}
