// internal/upload/tray.go
//
// Formkit – Uploads: selection tray and acceptance rules.
//
// Context
//   A Tray holds the accepted files of one file field on one mounted form.
//   Picker selections and drag-and-drop both land in admit(), so the two
//   input paths can never drift apart.
//
// Rules, per file and in order
//   •  A file equal to an accepted one (same name AND size) is ignored.
//   •  Count: accepting it must not exceed MaxFiles.
//   •  Size: Size() must not exceed MaxSizeBytes.
//   •  Type: the lowercase extension must be in AllowedExtensions.
//
//   A rejection only drops that file.  Single-file trays (MaxFiles == 1)
//   reject a multi-file batch outright, and a newly accepted file replaces
//   the previous one.
//
//   MaxFiles bounds the whole form.  Trays of one form share a Budget, so
//   the count rule sees files accepted by sibling fields too.
//
//------------------------------------------------------------------------------

package upload

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Defaults applied to zero-valued Constraints fields.
const (
	DefaultMaxFiles     = 5
	DefaultMaxSizeBytes = 25 << 20
)

// DefaultExtensions is used when a constraint set lists none.
var DefaultExtensions = []string{"pdf", "docx", "zip", "png", "jpg", "jpeg"}

// Constraints bounds what a Tray accepts.
type Constraints struct {
	MaxFiles          int      `yaml:"max_files"          validate:"gte=0"`
	MaxSizeBytes      int64    `yaml:"max_size_bytes"     validate:"gte=0"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// Normalized fills defaults and canonicalises extensions to lowercase
// without the leading dot.
func (c Constraints) Normalized() Constraints {
	out := c
	if out.MaxFiles == 0 {
		out.MaxFiles = DefaultMaxFiles
	}
	if out.MaxSizeBytes == 0 {
		out.MaxSizeBytes = DefaultMaxSizeBytes
	}
	src := c.AllowedExtensions
	if len(src) == 0 {
		src = DefaultExtensions
	}
	out.AllowedExtensions = make([]string, 0, len(src))
	for _, e := range src {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out.AllowedExtensions = append(out.AllowedExtensions, e)
		}
	}
	return out
}

func (c Constraints) allows(ext string) bool {
	for _, e := range c.AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrorKind classifies a FileError.
type ErrorKind int

const (
	ErrCount ErrorKind = iota + 1 // would exceed MaxFiles
	ErrSize                       // larger than MaxSizeBytes
	ErrType                       // extension not allowed
	ErrBatch                      // multi-file batch on a single-file tray
)

func (k ErrorKind) String() string {
	switch k {
	case ErrCount:
		return "count"
	case ErrSize:
		return "size"
	case ErrType:
		return "type"
	case ErrBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// FileError reports one rejected file.  Message is user-facing.
type FileError struct {
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *FileError) Error() string { return e.Message }

// -----------------------------------------------------------------------------
// Tray
// -----------------------------------------------------------------------------

// Budget counts the files accepted across the trays of one form.  A tray
// always locks itself before its budget.
type Budget struct {
	mu   sync.Mutex
	used int
}

// NewBudget returns an empty budget.
func NewBudget() *Budget { return &Budget{} }

// Used reports how many files the sharing trays hold together.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Tray is safe for concurrent use.
type Tray struct {
	limits Constraints
	budget *Budget

	mu    sync.Mutex
	files []File
}

// NewTray returns an empty tray bound to c (defaults applied) with a
// budget of its own.
func NewTray(c Constraints) *Tray {
	return NewSharedTray(c, NewBudget())
}

// NewSharedTray returns an empty tray that counts against b.  Every tray
// of a form must be built from the same Constraints and Budget.
func NewSharedTray(c Constraints, b *Budget) *Tray {
	if b == nil {
		b = NewBudget()
	}
	return &Tray{limits: c.Normalized(), budget: b}
}

// Constraints returns the normalized limits.
func (t *Tray) Constraints() Constraints { return t.limits }

// Select adds files chosen through a file picker.
func (t *Tray) Select(files ...File) []*FileError { return t.admit(files) }

// Drop adds files dropped onto the upload area.
func (t *Tray) Drop(files ...File) []*FileError { return t.admit(files) }

// admit is the single acceptance routine behind Select and Drop.
func (t *Tray) admit(batch []File) []*FileError {
	if len(batch) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.budget.mu.Lock()
	defer t.budget.mu.Unlock()

	if t.limits.MaxFiles == 1 {
		return t.admitSingle(batch)
	}

	var errs []*FileError
	for _, f := range batch {
		if t.hasLocked(f) {
			continue
		}
		if ferr := t.check(f, t.budget.used); ferr != nil {
			errs = append(errs, ferr)
			continue
		}
		t.files = append(t.files, f)
		t.budget.used++
	}
	return errs
}

func (t *Tray) admitSingle(batch []File) []*FileError {
	if len(batch) > 1 {
		return []*FileError{{
			Kind:    ErrBatch,
			Message: "Only one file is allowed.  Please select only one file.",
		}}
	}
	f := batch[0]
	if t.hasLocked(f) {
		return nil
	}
	// The incoming file replaces the current one, so only siblings count.
	others := t.budget.used - len(t.files)
	if ferr := t.check(f, others); ferr != nil {
		return []*FileError{ferr}
	}
	t.budget.used = others + 1
	t.files = []File{f}
	return nil
}

// check runs the count rule first, then size, then type.
func (t *Tray) check(f File, accepted int) *FileError {
	if accepted+1 > t.limits.MaxFiles {
		return &FileError{
			Kind: ErrCount,
			Name: f.Name(),
			Message: fmt.Sprintf("Maximum %d files allowed.  You already have %d files.",
				t.limits.MaxFiles, accepted),
		}
	}
	if f.Size() > t.limits.MaxSizeBytes {
		return &FileError{
			Kind: ErrSize,
			Name: f.Name(),
			Message: fmt.Sprintf("File %q exceeds %s limit.",
				f.Name(), humanize.IBytes(uint64(t.limits.MaxSizeBytes))),
		}
	}
	if ext := Extension(f.Name()); !t.limits.allows(ext) {
		return &FileError{
			Kind: ErrType,
			Name: f.Name(),
			Message: fmt.Sprintf("File type %q not allowed.  Allowed types: %s.",
				"."+ext, dotted(t.limits.AllowedExtensions)),
		}
	}
	return nil
}

func (t *Tray) hasLocked(f File) bool {
	for _, cur := range t.files {
		if cur.Name() == f.Name() && cur.Size() == f.Size() {
			return true
		}
	}
	return false
}

// Remove drops the file at index i.  Out-of-range indexes are ignored.
func (t *Tray) Remove(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.files) {
		return
	}
	t.files = append(t.files[:i], t.files[i+1:]...)
	t.release(1)
}

// Clear empties the tray.
func (t *Tray) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release(len(t.files))
	t.files = nil
}

func (t *Tray) release(n int) {
	t.budget.mu.Lock()
	t.budget.used -= n
	t.budget.mu.Unlock()
}

// Files returns a copy of the accepted files in acceptance order.
func (t *Tray) Files() []File {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]File, len(t.files))
	copy(out, t.files)
	return out
}

// Len reports the number of accepted files.
func (t *Tray) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// TotalSize sums the sizes of the accepted files.
func (t *Tray) TotalSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for _, f := range t.files {
		n += f.Size()
	}
	return n
}

func dotted(exts []string) string {
	parts := make([]string, len(exts))
	for i, e := range exts {
		parts[i] = "." + e
	}
	return strings.Join(parts, ", ")
}
