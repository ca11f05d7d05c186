package executor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ytget/yt-search-downloader/internal/batch"
	"github.com/ytget/yt-search-downloader/internal/config"
	"github.com/ytget/yt-search-downloader/internal/model"
	"github.com/ytget/yt-search-downloader/internal/platform"
)

// progressInterval controls how often yt-dlp reports back
const progressInterval = 500 * time.Millisecond

// YtdlpExecutor downloads videos by shelling out to yt-dlp
type YtdlpExecutor struct{}

// NewYtdlpExecutor creates an executor backed by the yt-dlp binary
func NewYtdlpExecutor() *YtdlpExecutor {
	return &YtdlpExecutor{}
}

// Install ensures the yt-dlp binary is available, downloading it when
// missing.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

// Download fetches one video into the configured output directory and
// returns the path of the resulting file.
func (e *YtdlpExecutor) Download(ctx context.Context, video model.VideoCandidate, opts config.DownloadOptions, progress func(batch.ProgressEvent)) (string, error) {
	if err := platform.EnsureDir(opts.OutputDir); err != nil {
		return "", &batch.DownloadError{Kind: batch.ErrorPermanent, Err: err}
	}

	dl := ytdlp.New().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		Output(filepath.Join(opts.OutputDir, opts.FilenameTemplate))

	switch opts.Quality {
	case config.QualityAudio:
		dl = dl.ExtractAudio().AudioFormat("mp3")
	case config.QualityMedium:
		dl = dl.Format("bv*[height<=720]+ba/b[height<=720]/b")
	default:
		// QualityBest leaves format selection to yt-dlp.
	}

	if progress != nil {
		dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			progress(progressEvent(&update))
		})
	}

	slog.Debug("starting download",
		slog.String("video_id", video.ID),
		slog.String("quality", string(opts.Quality)))

	result, err := dl.Run(ctx, video.URL())
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &batch.DownloadError{Kind: batch.Classify(err), Err: err}
	}

	path := outputPath(result)
	if path == "" {
		// yt-dlp does not always report the final filename, and
		// RestrictFilenames may have rewritten the one we asked for.
		if found, ok := platform.FindDownloadedFile(opts.OutputDir, platform.SanitizeFilename(video.Title)); ok {
			path = found
		}
	}
	return path, nil
}

// progressEvent converts a yt-dlp progress update into the batch event
// shape. A zero total keeps the fraction unknown.
func progressEvent(update *ytdlp.ProgressUpdate) batch.ProgressEvent {
	ev := batch.ProgressEvent{
		BytesDone:  int64(update.DownloadedBytes),
		BytesTotal: int64(update.TotalBytes),
		ETASec:     -1,
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started).Seconds()
		if elapsed > 0 {
			ev.Speed = float64(update.DownloadedBytes) / elapsed
		}
	}

	if eta := update.ETA(); eta > 0 {
		ev.ETASec = int(eta.Seconds())
	}
	return ev
}

// outputPath extracts the downloaded file path from the yt-dlp result
func outputPath(result *ytdlp.Result) string {
	if result == nil {
		return ""
	}
	info, err := result.GetExtractedInfo()
	if err != nil || len(info) == 0 {
		return ""
	}
	if info[0].Filename != nil {
		return *info[0].Filename
	}
	return ""
}
