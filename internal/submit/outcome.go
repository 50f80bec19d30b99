// internal/submit/outcome.go
//
// Formkit – Submission subsystem: outcome variant and payload envelope.
//
// Context
//   Every attempt resolves to exactly one Outcome: Success, Rejected (the
//   endpoint parsed the request and refused it), or NetworkFailure (nothing
//   usable came back).  Only NetworkFailure is safe to retry; Rejected
//   reflects a business decision by the endpoint.
//
//------------------------------------------------------------------------------

package submit

import (
	"github.com/yanizio/formkit/internal/form"
	"github.com/yanizio/formkit/internal/upload"
)

// Kind tags an Outcome.
type Kind int

const (
	Success Kind = iota
	Rejected
	NetworkFailure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case NetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Outcome is the normalized result of one request.
type Outcome struct {
	Kind    Kind
	Message string // user-facing, never empty
	Status  int    // HTTP status when a response arrived, else 0
	Err     error  // transport or decode cause for NetworkFailure
}

// OK reports Kind == Success.
func (o Outcome) OK() bool { return o.Kind == Success }

// Retryable reports whether resending the same payload is safe.
func (o Outcome) Retryable() bool { return o.Kind == NetworkFailure }

// Defaults are the caller-supplied messages used when the endpoint does not
// provide one.
type Defaults struct {
	Success  string
	Rejected string
	Network  string
}

// DefaultsFor copies the message templates of s.
func DefaultsFor(s *form.Spec) Defaults {
	return Defaults{Success: s.Messages.Success, Rejected: s.Messages.Rejected, Network: s.Messages.Network}
}

// -----------------------------------------------------------------------------
// Envelope
// -----------------------------------------------------------------------------

// Payload is the JSON request body.
type Payload map[string]any

// Envelope builds { ...fields, files: [...], source }.  File fields are
// omitted from the flat part; their content travels in files.  The files key
// is present whenever the form declares file fields, even when empty.
func Envelope(s *form.Spec, rec form.Record, files []upload.Descriptor) Payload {
	p := make(Payload, len(s.Fields)+2)
	for _, f := range s.Fields {
		if f.Kind == form.FileField {
			continue
		}
		v, ok := rec[f.Name]
		if !ok {
			v = form.Value{Kind: f.Kind}
		}
		w := v.Wire()
		if list, isList := w.([]string); isList && list == nil {
			w = []string{}
		}
		p[f.Name] = w
	}
	if s.HasFiles() {
		if files == nil {
			files = []upload.Descriptor{}
		}
		p["files"] = files
	}
	p["source"] = s.Source
	return p
}
