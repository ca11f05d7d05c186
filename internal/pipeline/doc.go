package pipeline

// Package pipeline ties search, filtering and batch downloading into one
// run: query the provider, drop candidates the filter rejects, enqueue the
// rest and wait for the batch to settle.
