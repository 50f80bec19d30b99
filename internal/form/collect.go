// internal/form/collect.go
//
// Formkit – Forms subsystem: field collection.
//
// Context
//   The collector turns the read side of a mounted form (a Source) into a
//   Record of typed Values, one per declared field.  Checkbox groups keep
//   document order and phone inputs go through an optional normalizer;
//   file fields carry whatever their tray accepted.  Collection never fails: absent inputs
//   produce zero Values so a missing optional control cannot abort a
//   submission attempt.
//
//------------------------------------------------------------------------------

package form

import (
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yanizio/formkit/internal/upload"
)

// -----------------------------------------------------------------------------
// Capabilities
// -----------------------------------------------------------------------------

// Source is the read side of a mounted form.  Values returns the submitted
// values for name in document order; unchecked checkboxes submit nothing.
type Source interface {
	Values(name string) []string
}

// Fields is a Source backed by a plain map.  It matches the shape of
// url.Values, so posted HTML forms convert without copying.
type Fields map[string][]string

// Values implements Source.
func (f Fields) Values(name string) []string { return f[name] }

// FromValues adapts parsed form data.
func FromValues(v url.Values) Source { return Fields(v) }

// PhoneNormalizer is an optional phone-number capability.  Number returns
// the canonical form of raw; Valid reports whether raw is a dialable number.
type PhoneNormalizer interface {
	Number(raw string) string
	Valid(raw string) bool
	Close() error
}

// FileLister exposes the accepted files of a file field.  *upload.Tray
// satisfies it.
type FileLister interface {
	Files() []upload.File
}

// -----------------------------------------------------------------------------
// Values
// -----------------------------------------------------------------------------

// Value is the collected value of one field.  Which member is meaningful
// depends on Kind.
type Value struct {
	Kind  Kind
	Text  string        // text-like and phone fields
	List  []string      // checkbox-group fields, never nil
	Bool  bool          // single checkbox fields
	Files []upload.File // file fields

	// PhoneValid holds the normalizer's verdict; nil when no normalizer
	// was registered for the field.
	PhoneValid *bool
}

// Empty reports whether the value counts as "not provided".
func (v Value) Empty() bool {
	switch v.Kind {
	case CheckboxGroupField:
		return len(v.List) == 0
	case CheckboxField:
		return !v.Bool
	case FileField:
		return len(v.Files) == 0
	default:
		return v.Text == ""
	}
}

// Wire returns the JSON-ready representation.  File fields return nil;
// their content travels in the separate files envelope.
func (v Value) Wire() any {
	switch v.Kind {
	case CheckboxGroupField:
		return v.List
	case CheckboxField:
		return v.Bool
	case FileField:
		return nil
	default:
		return v.Text
	}
}

// Record holds the Values of one attempt keyed by field name.
type Record map[string]Value

// Text returns the text of field name, or "".
func (r Record) Text(name string) string { return r[name].Text }

// -----------------------------------------------------------------------------
// Collector
// -----------------------------------------------------------------------------

// Collector reads Records for one form instance.
type Collector struct {
	log *zap.SugaredLogger

	mu     sync.RWMutex // guards phones; Close waits for running Collects
	phones map[string]PhoneNormalizer
	files  map[string]FileLister

	warnMu sync.Mutex
	warned map[string]bool
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithPhone registers a normalizer for the phone field name.
func WithPhone(name string, n PhoneNormalizer) CollectorOption {
	return func(c *Collector) {
		if n != nil {
			c.phones[name] = n
		}
	}
}

// WithFiles binds the accepted-file list of the file field name.
func WithFiles(name string, l FileLister) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.files[name] = l
		}
	}
}

// WithLogger sets the logger used for ComponentMissing warnings.
func WithLogger(l *zap.SugaredLogger) CollectorOption {
	return func(c *Collector) { c.log = l }
}

// NewCollector returns a Collector.  Without WithLogger it logs through
// the global zap logger.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		phones: make(map[string]PhoneNormalizer),
		files:  make(map[string]FileLister),
		warned: make(map[string]bool),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.S()
	}
	return c
}

// Collect reads every field of fields out of src.  A nil src collects
// zero values.
func (c *Collector) Collect(src Source, fields []FieldSpec) Record {
	if src == nil {
		src = Fields(nil)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	rec := make(Record, len(fields))
	for _, f := range fields {
		raw := src.Values(f.Name)
		v := Value{Kind: f.Kind}

		switch f.Kind {
		case CheckboxGroupField:
			v.List = make([]string, 0, len(raw))
			for _, s := range raw {
				if s = strings.TrimSpace(s); s != "" {
					v.List = append(v.List, s)
				}
			}

		case CheckboxField:
			for _, s := range raw {
				if strings.TrimSpace(s) != "" {
					v.Bool = true
					break
				}
			}

		case PhoneField:
			v.Text = first(raw)
			if n, ok := c.phones[f.Name]; ok {
				if v.Text != "" {
					valid := n.Valid(v.Text)
					v.PhoneValid = &valid
					if num := n.Number(v.Text); num != "" {
						v.Text = num
					}
				}
			} else {
				c.warnMissing(f.Name)
			}

		case FileField:
			if l, ok := c.files[f.Name]; ok {
				v.Files = l.Files()
			}

		default:
			v.Text = first(raw)
		}

		rec[f.Name] = v
	}
	return rec
}

// Close releases every registered normalizer and returns the first error.
// Later Collects read phone fields raw.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, n := range c.phones {
		if err := n.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.phones, name)
	}
	return firstErr
}

// warnMissing logs ComponentMissing once per field.
func (c *Collector) warnMissing(field string) {
	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if c.warned[field] {
		return
	}
	c.warned[field] = true
	c.log.Warnw("phone normalizer missing, using raw input", "field", field)
}

func first(raw []string) string {
	if len(raw) == 0 {
		return ""
	}
	return strings.TrimSpace(raw[0])
}
