package batch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind classifies a per-task download failure
type ErrorKind int

const (
	// ErrorTransient marks failures that may succeed on retry (network,
	// timeout).
	ErrorTransient ErrorKind = iota

	// ErrorPermanent marks failures that will not change on retry
	// (item unavailable, permission or region blocked).
	ErrorPermanent
)

// DownloadError carries a classified download failure. Executors may return
// it directly to control retry behavior; unwrapped errors are classified
// heuristically.
type DownloadError struct {
	Kind ErrorKind
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download: %v", e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// permanentMarkers are substrings of executor error messages that indicate
// a condition retrying will not change.
var permanentMarkers = []string{
	"video unavailable",
	"private video",
	"removed",
	"age restricted",
	"available in your country",
	"region",
	"copyright",
	"permission",
	"sign in",
}

// Classify determines whether a failure is worth retrying. Typed
// DownloadErrors keep their own classification; timeouts and network
// failures are transient; recognizable availability errors are permanent.
// Unknown failures default to transient so the retry budget decides.
func Classify(err error) ErrorKind {
	var dlErr *DownloadError
	if errors.As(err, &dlErr) {
		return dlErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorTransient
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return ErrorPermanent
		}
	}
	return ErrorTransient
}

// backoff limits
const maxBackoff = 60 * time.Second

// backoffDelay returns the wait before a retried task becomes eligible for
// dispatch again: 2^attempt seconds, capped.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
