// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts.
//
// Defaults:
//
//   • ReadHeaderTimeout – abort slow-loris headers (10 s)
//   • ReadTimeout       – cap body upload time; multipart resumes are large (60 s)
//   • WriteTimeout      – upstream wait plus encoding headroom (upstream + 15 s)
//   • IdleTimeout       – close keep-alives on idle clients (60 s)
//
// This helper centralises those defaults so cmd/formkit doesn't repeat
// boilerplate.
//

package server

import (
	"net/http"
	"time"
)

// New constructs an *http.Server.  upstream is the submission-client
// timeout; the write deadline must outlast it or relayed answers would be
// cut off.
func New(addr string, handler http.Handler, upstream time.Duration) *http.Server {
	if upstream <= 0 {
		upstream = 30 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      upstream + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
