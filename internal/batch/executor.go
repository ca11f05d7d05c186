package batch

import (
	"context"

	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
)

// ProgressEvent is one progress report from the download executor
type ProgressEvent struct {
	BytesDone  int64
	BytesTotal int64   // 0 when unknown
	Speed      float64 // bytes per second
	ETASec     int     // -1 when unknown
}

// Executor runs a single download to completion. Implementations must
// honor ctx cancellation promptly and report progress through the callback.
// On success the path of the downloaded file is returned.
type Executor interface {
	Download(ctx context.Context, video model.VideoCandidate, opts config.DownloadOptions, progress func(ProgressEvent)) (string, error)
}
