package model

// Package model defines domain data structures used across the app: video
// search candidates, download tasks, batch progress aggregates, and status
// enums. Structures are designed for direct consumption by front ends and
// explicit state transitions.
