package search

import "fmt"

// NetworkError reports a transport-level search failure (connection
// refused, timeout, DNS). The same search may succeed if retried by the
// caller.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("search: network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ProviderError reports a well-formed request that the provider rejected
// (quota exceeded, malformed query, provider-side block). Retrying the
// same request is pointless.
type ProviderError struct {
	StatusCode int // HTTP status, 0 when the rejection was not HTTP-level
	Reason     string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search: provider rejected request (%d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("search: provider rejected request: %s", e.Reason)
}

// IsRateLimited reports whether the provider rejected the request due to
// quota or rate limiting.
func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == 429
}
