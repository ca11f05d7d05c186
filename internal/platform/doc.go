package platform

// Package platform contains OS integration helpers: filesystem setup for
// the download directory and filename handling shared by the executor and
// the history store.
