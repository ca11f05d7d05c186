package history

// Package history persists finished download records to a local SQLite
// database so later runs can report and skip previously downloaded videos.
