package batch

// Package batch implements the core download pipeline: a FIFO queue of
// download tasks driven by a bounded pool of workers against an external
// download executor. It manages task lifecycle, concurrency limits, retry
// with backoff, pause/resume/cancel control, and progress aggregation.
