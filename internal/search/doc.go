package search

// Package search turns a validated SearchConfig into a capped, ordered
// sequence of VideoCandidate. The engine issues exactly one request to a
// Provider per call and classifies failures as transport-level
// (NetworkError) or request-level (ProviderError); retry policy belongs to
// the caller.
