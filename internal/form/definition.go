// internal/form/definition.go
//
// Formkit – Forms subsystem: YAML definition loader.
//
// Context
//   Each form is declared in a YAML file holding its endpoint and its
//   ordered fields with their rules.  Forms differ only by this
//   declaration; everything downstream is shared.  Definitions are parsed once at startup into a
//   Registry and are read-only afterwards.
//
// Workflow
//   •  Structs mirror the YAML schema: Spec → FieldSpec → RuleSpec.
//   •  ParseSpec / LoadSpec decode one document and validate its structure
//      with struct tags (go-playground/validator) plus cross-field checks.
//   •  Registry.LoadDirs walks directories in precedence order; the first
//      directory that defines an ID wins.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yanizio/formkit/internal/upload"
)

// ErrUnknownForm is returned when a form ID is not registered.
var ErrUnknownForm = errors.New("unknown form")

// -----------------------------------------------------------------------------
// Field and rule kinds
// -----------------------------------------------------------------------------

// Kind is the input kind of a field.
type Kind string

const (
	TextField          Kind = "text"
	EmailField         Kind = "email"
	PhoneField         Kind = "phone"
	CheckboxGroupField Kind = "checkbox-group"
	CheckboxField      Kind = "checkbox"
	FileField          Kind = "file"

	// Aliases collected exactly like TextField.
	TextAreaField Kind = "textarea"
	RadioField    Kind = "radio"
	SelectField   Kind = "select"
	URLField      Kind = "url"
)

// RuleKind names a validation rule.
type RuleKind string

const (
	RuleRequired            RuleKind = "required"
	RuleEmail               RuleKind = "email"
	RuleMinLength           RuleKind = "minLength"
	RuleNonEmptyList        RuleKind = "nonEmptyList"
	RuleOneOf               RuleKind = "oneOf"
	RuleConditionalRequired RuleKind = "conditionalRequired"
	RuleURL                 RuleKind = "url"
	RuleDistinctFrom        RuleKind = "distinctFrom"
	RulePhone               RuleKind = "phone"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Spec is one form definition.
type Spec struct {
	ID          string             `yaml:"id"           validate:"required"`
	Title       string             `yaml:"title"`
	Source      string             `yaml:"source"       validate:"required"`   // origin tag sent with every submission
	Endpoint    string             `yaml:"endpoint"     validate:"required,url"`
	SubmitLabel string             `yaml:"submit_label"`                       // idle button label
	BusyLabel   string             `yaml:"busy_label"`                         // label while working
	Messages    Messages           `yaml:"messages"`
	Fields      []FieldSpec        `yaml:"fields"       validate:"required,min=1,dive"`
	Files       upload.Constraints `yaml:"files"`
}

// Messages are the user-facing outcome templates.  Server-supplied text
// takes precedence when present.
type Messages struct {
	Success  string `yaml:"success"`
	Rejected string `yaml:"rejected"`
	Network  string `yaml:"network"`
}

// FieldSpec describes one named input.
type FieldSpec struct {
	Name  string     `yaml:"name"  validate:"required"`
	Label string     `yaml:"label"`
	Kind  Kind       `yaml:"kind"  validate:"required,oneof=text email phone checkbox-group checkbox file textarea radio select url"`
	Rules []RuleSpec `yaml:"rules" validate:"dive"`
}

// RuleSpec is one declarative rule.  Which parameters apply depends on Rule:
// N for minLength, Field for distinctFrom, Field and When for
// conditionalRequired.
type RuleSpec struct {
	Rule    RuleKind `yaml:"rule"    validate:"required,oneof=required email minLength nonEmptyList oneOf conditionalRequired url distinctFrom phone"`
	Message string   `yaml:"message"`
	N       int      `yaml:"n"       validate:"gte=0"`
	Field   string   `yaml:"field"`
	When    string   `yaml:"when"`
}

// Display label used in messages.
func (f FieldSpec) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// HasFiles reports whether the form declares a file field.
func (s *Spec) HasFiles() bool {
	return len(s.FileFields()) > 0
}

// FileFields returns the names of file fields in declaration order.
func (s *Spec) FileFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Kind == FileField {
			out = append(out, f.Name)
		}
	}
	return out
}

// PhoneFields returns the names of phone fields in declaration order.
func (s *Spec) PhoneFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Kind == PhoneField {
			out = append(out, f.Name)
		}
	}
	return out
}

// ConditionalFields returns fields shown only when another field holds a
// sentinel value, i.e. every field carrying a conditionalRequired rule.
func (s *Spec) ConditionalFields() []string {
	var out []string
	for _, f := range s.Fields {
		for _, r := range f.Rules {
			if r.Rule == RuleConditionalRequired {
				out = append(out, f.Name)
				break
			}
		}
	}
	return out
}

// Field returns the FieldSpec called name.
func (s *Spec) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

var structs = validator.New()

// LoadSpec reads and validates one YAML file.
func LoadSpec(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return ParseSpec(raw, path)
}

// ParseSpec decodes raw YAML and validates it after filling defaults.  origin is
// only used in error messages.
func ParseSpec(raw []byte, origin string) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", origin, err)
	}
	if err := s.prepare(origin); err != nil {
		return nil, err
	}
	return &s, nil
}

// prepare fills defaults and enforces rules struct tags cannot express.
func (s *Spec) prepare(origin string) error {
	if err := structs.Struct(s); err != nil {
		return fmt.Errorf("form definition %s: %w", origin, err)
	}

	if s.SubmitLabel == "" {
		s.SubmitLabel = "Submit"
	}
	if s.BusyLabel == "" {
		s.BusyLabel = "Submitting..."
	}
	if s.Messages.Success == "" {
		s.Messages.Success = "Thank you! Your submission has been received."
	}
	if s.Messages.Rejected == "" {
		s.Messages.Rejected = "There was an error submitting the form. Please try again."
	}
	if s.Messages.Network == "" {
		s.Messages.Network = "Network error. Please check your connection and try again."
	}
	s.Files = s.Files.Normalized()

	names := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if _, dup := names[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", origin, f.Name)
		}
		if f.Name == "files" || f.Name == "source" {
			return fmt.Errorf("form %s: field name '%s' is reserved", origin, f.Name)
		}
		names[f.Name] = struct{}{}
	}

	for _, f := range s.Fields {
		for _, r := range f.Rules {
			if err := checkRule(f, r, names); err != nil {
				return fmt.Errorf("form %s: %w", origin, err)
			}
		}
	}
	return nil
}

func checkRule(f FieldSpec, r RuleSpec, names map[string]struct{}) error {
	switch r.Rule {
	case RuleMinLength:
		if r.N <= 0 {
			return fmt.Errorf("field '%s': minLength needs n > 0", f.Name)
		}
	case RuleConditionalRequired:
		if r.Field == "" || r.When == "" {
			return fmt.Errorf("field '%s': conditionalRequired needs 'field' and 'when'", f.Name)
		}
		if _, ok := names[r.Field]; !ok {
			return fmt.Errorf("field '%s': conditionalRequired references unknown field '%s'", f.Name, r.Field)
		}
	case RuleDistinctFrom:
		if _, ok := names[r.Field]; !ok {
			return fmt.Errorf("field '%s': distinctFrom references unknown field '%s'", f.Name, r.Field)
		}
		if r.Field == f.Name {
			return fmt.Errorf("field '%s': distinctFrom cannot reference itself", f.Name)
		}
	case RuleNonEmptyList, RuleOneOf:
		if f.Kind != CheckboxGroupField {
			return fmt.Errorf("field '%s': %s applies to checkbox-group fields only", f.Name, r.Rule)
		}
	case RulePhone:
		if f.Kind != PhoneField {
			return fmt.Errorf("field '%s': phone rule applies to phone fields only", f.Name)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry maps form IDs to parsed specs.  Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]*Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]*Spec)}
}

// Add registers s, replacing any spec with the same ID.
func (r *Registry) Add(s *Spec) {
	r.mu.Lock()
	r.forms[s.ID] = s
	r.mu.Unlock()
}

// Get returns the spec for id.
func (r *Registry) Get(id string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.forms[id]
	return s, ok
}

// Lookup is Get with an error.
func (r *Registry) Lookup(id string) (*Spec, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownForm, id)
}

// IDs returns the registered IDs sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.forms))
	for id := range r.forms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadDirs walks dirs and registers every "*.yaml" / "*.yml" definition.
// dirs are ordered by precedence: an ID found in an earlier directory is not
// replaced by a later one.  Missing directories are skipped; a malformed
// definition aborts loading.
//
//	err := reg.LoadDirs("/srv/site/forms", "/srv/formkit/forms")
func (r *Registry) LoadDirs(dirs ...string) error {
	if len(dirs) == 0 {
		return errors.New("LoadDirs: no directories provided")
	}

	type origin struct {
		dir  int
		path string
	}
	seen := make(map[string]origin)
	for i, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !isYAML(d.Name()) {
				return nil
			}

			s, err := LoadSpec(path)
			if err != nil {
				return err
			}
			if first, ok := seen[s.ID]; ok {
				if first.dir == i {
					return fmt.Errorf("form id %q defined twice: %s, %s", s.ID, first.path, path)
				}
				return nil // overridden by a higher-precedence directory
			}
			seen[s.ID] = origin{dir: i, path: path}
			r.Add(s)
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
