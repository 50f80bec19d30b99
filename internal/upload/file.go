// internal/upload/file.go
//
// Formkit – Uploads: selected-file sources.
//
// Context
//   A File is anything a user can pick or drop onto a file field.  The tray
//   only needs metadata (name, size, declared type) to decide acceptance;
//   content is opened exactly once, by the encoder, after validation passed.
//   Three sources ship with the package: local paths (CLI), multipart file
//   headers (relay), and in-memory bytes (tests and programmatic callers).
//
//------------------------------------------------------------------------------

package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// File is the metadata and content handle of one selected file.
type File interface {
	Name() string
	Size() int64
	Type() string // declared MIME type, may be empty
	Open() (io.ReadCloser, error)
}

// Extension returns the lowercase substring after the last "." of name, or
// "" when name has no dot.  Acceptance checks rely on this alone; file
// content is never sniffed to decide whether a file is allowed.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// -----------------------------------------------------------------------------
// Local files
// -----------------------------------------------------------------------------

type localFile struct {
	path string
	name string
	size int64
}

// Local stats path and returns it as a File.  Directories are rejected.
func Local(path string) (File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &localFile{path: path, name: filepath.Base(path), size: fi.Size()}, nil
}

func (f *localFile) Name() string                 { return f.name }
func (f *localFile) Size() int64                  { return f.size }
func (f *localFile) Type() string                 { return "" }
func (f *localFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// -----------------------------------------------------------------------------
// Multipart file headers
// -----------------------------------------------------------------------------

type partFile struct{ fh *multipart.FileHeader }

// FromHeader wraps a parsed multipart file header.
func FromHeader(fh *multipart.FileHeader) File { return partFile{fh: fh} }

func (p partFile) Name() string { return p.fh.Filename }
func (p partFile) Size() int64  { return p.fh.Size }
func (p partFile) Type() string { return p.fh.Header.Get("Content-Type") }
func (p partFile) Open() (io.ReadCloser, error) {
	return p.fh.Open()
}

// -----------------------------------------------------------------------------
// In-memory files
// -----------------------------------------------------------------------------

type memFile struct {
	name string
	typ  string
	data []byte
}

// Bytes returns a File backed by data.  typ may be empty.
func Bytes(name, typ string, data []byte) File {
	return memFile{name: name, typ: typ, data: data}
}

func (m memFile) Name() string { return m.name }
func (m memFile) Size() int64  { return int64(len(m.data)) }
func (m memFile) Type() string { return m.typ }
func (m memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}
