// internal/upload/encode.go
//
// Formkit – Uploads: transport encoding.
//
// Context
//   Accepted files travel inline inside the JSON submission, so each one is
//   read and base64-encoded (standard alphabet, no data-URL prefix).  Files
//   of one batch are encoded concurrently; Encode returns only after every
//   file finished and reports the first failure.
//
//------------------------------------------------------------------------------

package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

// Descriptor is an encoded file as sent to the submission endpoint.
type Descriptor struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	Data      string `json:"data"`
	Extension string `json:"extension"`
}

// Encode reads and encodes files concurrently.  The result preserves input
// order.  On failure no descriptors are returned.
func Encode(ctx context.Context, files []File) ([]Descriptor, error) {
	if len(files) == 0 {
		return nil, nil
	}

	out := make([]Descriptor, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			d, err := encodeOne(gctx, f)
			if err != nil {
				return fmt.Errorf("encode %s: %w", f.Name(), err)
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeOne(ctx context.Context, f File) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}

	rc, err := f.Open()
	if err != nil {
		return Descriptor{}, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return Descriptor{}, err
	}

	typ := f.Type()
	if typ == "" {
		typ = mimetype.Detect(raw).String()
	}

	ext := Extension(f.Name())
	if ext != "" {
		ext = "." + ext
	}

	return Descriptor{
		Name:      f.Name(),
		Type:      typ,
		Size:      f.Size(),
		Data:      base64.StdEncoding.EncodeToString(raw),
		Extension: ext,
	}, nil
}

// ValidateAndEncode runs files through a fresh Tray bound to c and encodes
// whatever it accepted.  Rejections are returned alongside the descriptors;
// the error is non-nil only when encoding failed.
func ValidateAndEncode(ctx context.Context, files []File, c Constraints) ([]Descriptor, []*FileError, error) {
	t := NewTray(c)
	rejected := t.Select(files...)
	descs, err := Encode(ctx, t.Files())
	if err != nil {
		return nil, rejected, err
	}
	return descs, rejected, nil
}
