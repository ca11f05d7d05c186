package executor

// Package executor adapts yt-dlp (via github.com/lrstanley/go-ytdlp) into
// the batch download interface. It translates quality presets and naming
// patterns into yt-dlp flags, relays progress reports, and classifies
// failures for the retry policy.
