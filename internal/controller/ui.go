// internal/controller/ui.go
//
// Formkit – Controller subsystem: UI boundary.
//
// Context
//   The controller never touches markup.  Everything it shows goes through
//   UI, implemented by whatever hosts the form: a browser bridge, the relay
//   (which renders the final state as JSON), or a test fake.  Recorder is
//   the in-memory implementation the relay and CLI use.
//
//------------------------------------------------------------------------------

package controller

import (
	"sync"

	"github.com/yanizio/formkit/internal/upload"
)

// UI is the write side of a mounted form.  Methods are called with the
// controller lock held and must not call back into the Controller.
type UI interface {
	SubmitLabel() string                         // current label, read once at mount
	Busy(label string)                           // disable submit, show label
	Restore(label string)                        // re-enable submit, show label
	ClearMessage()                               // hide the message area
	ShowError(msg string)                        // show msg and scroll it into view
	ShowSuccess(msg string)                      // show msg
	Reset()                                      // clear every input
	HideField(name string)                       // collapse a conditional section
	FileRejected(field, msg string)              // report one refused file
	ShowFiles(field string, files []upload.File) // refresh a file preview
}

// MessageKind tells error and success messages apart in a Recorder.
type MessageKind string

const (
	NoMessage      MessageKind = ""
	ErrorMessage   MessageKind = "error"
	SuccessMessage MessageKind = "success"
)

// Recorder is a UI that keeps the visible state in memory.
type Recorder struct {
	mu sync.Mutex

	Label        string
	Disabled     bool
	Message      string
	Kind         MessageKind
	Scrolls      int
	Resets       int
	Hidden       map[string]bool
	FileMessages []string
	Previews     map[string][]string
}

// NewRecorder returns a Recorder whose submit control reads label.
func NewRecorder(label string) *Recorder {
	return &Recorder{
		Label:    label,
		Hidden:   make(map[string]bool),
		Previews: make(map[string][]string),
	}
}

func (r *Recorder) SubmitLabel() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Label
}

func (r *Recorder) Busy(label string) {
	r.mu.Lock()
	r.Label, r.Disabled = label, true
	r.mu.Unlock()
}

func (r *Recorder) Restore(label string) {
	r.mu.Lock()
	r.Label, r.Disabled = label, false
	r.mu.Unlock()
}

func (r *Recorder) ClearMessage() {
	r.mu.Lock()
	r.Message, r.Kind = "", NoMessage
	r.mu.Unlock()
}

func (r *Recorder) ShowError(msg string) {
	r.mu.Lock()
	r.Message, r.Kind = msg, ErrorMessage
	r.Scrolls++
	r.mu.Unlock()
}

func (r *Recorder) ShowSuccess(msg string) {
	r.mu.Lock()
	r.Message, r.Kind = msg, SuccessMessage
	r.mu.Unlock()
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.Resets++
	r.mu.Unlock()
}

func (r *Recorder) HideField(name string) {
	r.mu.Lock()
	r.Hidden[name] = true
	r.mu.Unlock()
}

func (r *Recorder) FileRejected(field, msg string) {
	r.mu.Lock()
	r.FileMessages = append(r.FileMessages, msg)
	r.mu.Unlock()
}

func (r *Recorder) ShowFiles(field string, files []upload.File) {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name()
	}
	r.mu.Lock()
	r.Previews[field] = names
	r.mu.Unlock()
}

// Snapshot returns the current message and its kind.
func (r *Recorder) Snapshot() (string, MessageKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Message, r.Kind
}
