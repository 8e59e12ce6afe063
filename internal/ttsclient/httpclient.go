package ttsclient

import (
	"net/http"
	"time"
)

// newPooledHTTPClient builds an http.Client tuned for a small number of
// long-lived upstream hosts: keep-alives on, connection reuse across the
// whole process lifetime, headers timing out well before a hung upstream
// would otherwise stall a generation task indefinitely.
func newPooledHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
