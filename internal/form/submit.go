// internal/form/submit.go
//
// Formkit – Forms subsystem: consolidated Check helper.
//
// Context
//   The relay's dry-run route wants one call that turns a POST body into a
//   validated Record.  Check provides that; the controller keeps its own
//   step-by-step flow because it must drive the UI between steps.
//
//------------------------------------------------------------------------------

package form

import (
	"fmt"
	"mime"
	"net/http"
)

// maxMemory bounds the in-memory part of a multipart body; the rest spills
// to temporary files.
const maxMemory = 32 << 20

// Check parses r and validates the fields of s collected with c.  On
// validation failure it returns the Record together with a ValidationError
// (check with IsValidationError).  Parse failures return a plain error.
func Check(s *Spec, c *Collector, r *http.Request) (Record, error) {
	if err := ParseRequest(r); err != nil {
		return nil, err
	}
	rec := c.Collect(FromValues(r.PostForm), s.Fields)
	return rec, Validate(rec, s.Fields).Err()
}

// ParseRequest parses urlencoded and multipart bodies into r.PostForm and
// r.MultipartForm.
func ParseRequest(r *http.Request) error {
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return fmt.Errorf("parse multipart body: %w", err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parse form body: %w", err)
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}
