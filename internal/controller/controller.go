// internal/controller/controller.go
//
// Formkit – Controller subsystem: per-instance submission state machine.
//
// Context
//   A Controller owns one mounted form: its phase, its submit-button label,
//   its file trays, and its timers.  Instances share nothing, so a modal
//   form and a page form never see each other's busy state or messages.
//
// Workflow
//   •  Idle | Error  --Submit-->  Validating.  Any other phase returns
//      ErrBusy and does nothing, which absorbs double clicks and repeated
//      Enter presses.
//   •  Validating: clear the previous message, show the busy label, collect,
//      validate.  Failure → Error with the first message; the button is
//      restored at once and no request is made.
//   •  Submitting: encode tray files (when the form has file fields), then
//      post.  Success → Success; Rejected or NetworkFailure → Error.
//   •  Success clears inputs and trays at once; its message is dismissed
//      when the DisplayFor timer fires.  Error keeps every input.  Both fall
//      back to Idle on that timer.
//   •  The trays of one form share a single MaxFiles budget.
//   •  Unmount stops pending timers.  An attempt already in flight still
//      resolves, but none of its UI effects are applied, and the phone
//      normalizers are closed only once it has finished.
//
//------------------------------------------------------------------------------

package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/formkit/internal/form"
	"github.com/yanizio/formkit/internal/journal"
	"github.com/yanizio/formkit/internal/metrics"
	"github.com/yanizio/formkit/internal/submit"
	"github.com/yanizio/formkit/internal/upload"
)

var (
	ErrBusy         = errors.New("controller: submission already in progress")
	ErrUnmounted    = errors.New("controller: form is unmounted")
	ErrUnknownField = errors.New("controller: not a file field")
)

// DefaultDisplayFor is how long a Success or Error state is held.
const DefaultDisplayFor = 5 * time.Second

// encodeFailed is shown when an accepted file cannot be read.
const encodeFailed = "One of your files could not be read.  Please select it again."

// -----------------------------------------------------------------------------
// Phases
// -----------------------------------------------------------------------------

// Phase is the controller state.
type Phase int

const (
	Idle Phase = iota
	Validating
	Submitting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "success"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Dependencies
// -----------------------------------------------------------------------------

// Submitter posts a payload.  *submit.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, endpoint string, p submit.Payload, d submit.Defaults) submit.Outcome
}

// Journal stores resolved attempts.  *journal.Store satisfies it.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed work.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Deps are the collaborators of one Controller.  Only the optional ones
// may be nil; UI, Source and Client may not.
type Deps struct {
	UI     UI
	Source form.Source
	Client Submitter

	// Phone returns a fresh normalizer for one phone field.  Nil disables
	// normalization; raw input is used and a warning is logged.
	Phone func() form.PhoneNormalizer

	Journal    Journal
	Clock      Clock
	DisplayFor time.Duration
	Log        *zap.SugaredLogger
}

// Attempt summarizes one resolved Submit.
type Attempt struct {
	ID         string
	Phase      Phase           // Succeeded or Failed
	Message    string          // what the UI was told
	Validation form.Result     // always set
	Outcome    *submit.Outcome // nil when no request was sent
	Files      int             // encoded files
	Err        error           // encoding failure, if any
}

// Result is the journal / metrics label of the attempt.
func (a Attempt) Result() string {
	switch {
	case !a.Validation.Valid:
		return "invalid"
	case a.Err != nil:
		return "encode_failure"
	case a.Outcome != nil:
		return a.Outcome.Kind.String()
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Controller
// -----------------------------------------------------------------------------

// Controller drives one mounted form.
type Controller struct {
	id   string
	spec *form.Spec
	deps Deps
	log  *zap.SugaredLogger

	collector *form.Collector
	trays     map[string]*upload.Tray
	label     string

	mu       sync.Mutex
	phase    Phase
	alive    bool
	inFlight bool // an attempt is using the collector
	released bool // collector closed
	gen      uint64
	timer    Timer
}

// New mounts spec.  It reads the submit label from the UI once so Restore
// always returns to the original text.
func New(spec *form.Spec, deps Deps) (*Controller, error) {
	if spec == nil {
		return nil, errors.New("controller: nil form spec")
	}
	if deps.UI == nil || deps.Source == nil || deps.Client == nil {
		return nil, errors.New("controller: UI, Source, and Client are required")
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.DisplayFor <= 0 {
		deps.DisplayFor = DefaultDisplayFor
	}
	if deps.Log == nil {
		deps.Log = zap.S()
	}

	c := &Controller{
		id:    uuid.NewString(),
		spec:  spec,
		deps:  deps,
		trays: make(map[string]*upload.Tray),
		alive: true,
	}
	c.log = deps.Log.With("form", spec.ID, "instance", c.id)

	opts := []form.CollectorOption{form.WithLogger(c.log)}
	budget := upload.NewBudget()
	for _, name := range spec.FileFields() {
		t := upload.NewSharedTray(spec.Files, budget)
		c.trays[name] = t
		opts = append(opts, form.WithFiles(name, t))
	}
	if deps.Phone != nil {
		for _, name := range spec.PhoneFields() {
			opts = append(opts, form.WithPhone(name, deps.Phone()))
		}
	}
	c.collector = form.NewCollector(opts...)

	if c.label = deps.UI.SubmitLabel(); c.label == "" {
		c.label = spec.SubmitLabel
	}

	metrics.ActiveControllers.Inc()
	c.log.Debugw("form mounted", "files", len(c.trays))
	return c, nil
}

// ID returns the instance identifier.
func (c *Controller) ID() string { return c.id }

// Spec returns the mounted form definition.
func (c *Controller) Spec() *form.Spec { return c.spec }

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Submit runs one attempt to completion.  It blocks on encoding and on the
// network call.  ErrBusy and ErrUnmounted are the only errors; every other
// failure is reported in the Attempt and through the UI.
func (c *Controller) Submit(ctx context.Context) (Attempt, error) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return Attempt{}, ErrUnmounted
	}
	if c.phase != Idle && c.phase != Failed {
		c.mu.Unlock()
		return Attempt{}, ErrBusy
	}
	c.cancelTimerLocked()
	c.phase = Validating
	c.inFlight = true
	c.deps.UI.ClearMessage()
	c.deps.UI.Busy(c.spec.BusyLabel)
	c.mu.Unlock()
	defer c.done()

	start := c.deps.Clock.Now()
	a := Attempt{ID: uuid.NewString()}

	rec := c.collector.Collect(c.deps.Source, c.spec.Fields)
	a.Validation = form.Validate(rec, c.spec.Fields)
	if !a.Validation.Valid {
		a.Message = a.Validation.First()
		c.fail(a.Message)
		return c.finish(ctx, a, start), nil
	}

	c.setPhase(Submitting)

	var files []upload.Descriptor
	if c.spec.HasFiles() {
		var err error
		files, err = upload.Encode(ctx, c.trayFiles())
		if err != nil {
			a.Err = fmt.Errorf("encode %s: %w", c.spec.ID, err)
			a.Message = encodeFailed
			c.fail(a.Message)
			return c.finish(ctx, a, start), nil
		}
		a.Files = len(files)
	}

	sent := c.deps.Clock.Now()
	out := c.deps.Client.Submit(ctx, c.spec.Endpoint, submit.Envelope(c.spec, rec, files), submit.DefaultsFor(c.spec))
	metrics.SubmitSeconds.WithLabelValues(c.spec.ID).Observe(c.deps.Clock.Now().Sub(sent).Seconds())

	a.Outcome = &out
	a.Message = out.Message
	if out.OK() {
		c.succeed(out.Message)
	} else {
		c.fail(out.Message)
	}
	return c.finish(ctx, a, start), nil
}

// succeed applies the Success effects and schedules the dismissal.
func (c *Controller) succeed(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.phase = Succeeded
	for _, t := range c.trays {
		t.Clear()
	}
	if !c.alive {
		return
	}
	ui := c.deps.UI
	ui.Reset()
	for _, name := range c.spec.ConditionalFields() {
		ui.HideField(name)
	}
	for name := range c.trays {
		ui.ShowFiles(name, nil)
	}
	ui.ShowSuccess(msg)
	ui.Restore(c.label)
	c.scheduleLocked(func() { c.deps.UI.ClearMessage() })
}

// fail applies the Error effects.  Inputs and trays are left untouched.
func (c *Controller) fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.phase = Failed
	if !c.alive {
		return
	}
	c.deps.UI.ShowError(msg)
	c.deps.UI.Restore(c.label)
	c.scheduleLocked(nil)
}

// scheduleLocked returns the controller to Idle after DisplayFor, running
// effect first.  A newer attempt or an unmount invalidates the timer.
func (c *Controller) scheduleLocked(effect func()) {
	c.gen++
	gen := c.gen
	c.timer = c.deps.Clock.AfterFunc(c.deps.DisplayFor, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.alive || c.gen != gen {
			return
		}
		if effect != nil {
			effect()
		}
		c.phase = Idle
		c.timer = nil
	})
}

func (c *Controller) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// finish records a resolved attempt in metrics and the journal.
func (c *Controller) finish(ctx context.Context, a Attempt, start time.Time) Attempt {
	a.Phase = c.Phase()
	took := c.deps.Clock.Now().Sub(start)
	result := a.Result()

	metrics.AttemptsTotal.WithLabelValues(c.spec.ID, result).Inc()
	kv := []any{"attempt", a.ID, "result", result, "files", a.Files, "took", took}
	switch {
	case a.Err != nil:
		c.log.Errorw("submission attempt failed", append(kv, "err", a.Err)...)
	case a.Outcome != nil && a.Outcome.Err != nil:
		c.log.Warnw("submission attempt failed", append(kv, "err", a.Outcome.Err)...)
	default:
		c.log.Infow("submission attempt resolved", kv...)
	}

	if c.deps.Journal != nil {
		e := journal.Entry{
			ID:         a.ID,
			InstanceID: c.id,
			FormID:     c.spec.ID,
			Source:     c.spec.Source,
			Result:     result,
			Message:    a.Message,
			FileCount:  a.Files,
			DurationMS: took.Milliseconds(),
			CreatedAt:  start.UTC(),
		}
		if err := c.deps.Journal.Record(context.WithoutCancel(ctx), e); err != nil {
			c.log.Warnw("journal write failed", "attempt", a.ID, "err", err)
		}
	}
	return a
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// Select adds files chosen with the picker to field's tray.
func (c *Controller) Select(field string, files ...upload.File) ([]*upload.FileError, error) {
	return c.admit(field, files, (*upload.Tray).Select)
}

// Drop adds files dropped onto field's drop zone.  It shares every rule
// with Select.
func (c *Controller) Drop(field string, files ...upload.File) ([]*upload.FileError, error) {
	return c.admit(field, files, (*upload.Tray).Drop)
}

// RemoveFile drops the file at index i from field's tray.
func (c *Controller) RemoveFile(field string, i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.trayLocked(field)
	if err != nil {
		return err
	}
	t.Remove(i)
	c.deps.UI.ShowFiles(field, t.Files())
	return nil
}

// Files returns the accepted files of field.
func (c *Controller) Files(field string) []upload.File {
	if t, ok := c.trays[field]; ok {
		return t.Files()
	}
	return nil
}

func (c *Controller) admit(field string, files []upload.File, add func(*upload.Tray, ...upload.File) []*upload.FileError) ([]*upload.FileError, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.trayLocked(field)
	if err != nil {
		return nil, err
	}

	errs := add(t, files...)
	for _, fe := range errs {
		metrics.FilesRejectedTotal.WithLabelValues(c.spec.ID, fe.Kind.String()).Inc()
		c.deps.UI.FileRejected(field, fe.Message)
	}
	c.deps.UI.ShowFiles(field, t.Files())
	return errs, nil
}

func (c *Controller) trayLocked(field string) (*upload.Tray, error) {
	if !c.alive {
		return nil, ErrUnmounted
	}
	t, ok := c.trays[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return t, nil
}

// trayFiles lists the accepted files of every file field in declaration
// order.
func (c *Controller) trayFiles() []upload.File {
	var out []upload.File
	for _, name := range c.spec.FileFields() {
		out = append(out, c.trays[name].Files()...)
	}
	return out
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Unmount detaches the instance.  It is safe to call more than once.
func (c *Controller) Unmount() error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil
	}
	c.alive = false
	c.cancelTimerLocked()
	release := c.releaseLocked()
	c.mu.Unlock()

	metrics.ActiveControllers.Dec()
	c.log.Debugw("form unmounted", "deferred_close", !release)
	if !release {
		return nil
	}
	if err := c.collector.Close(); err != nil {
		return fmt.Errorf("close phone normalizers: %w", err)
	}
	return nil
}

// done ends an attempt and closes the collector when Unmount ran during it.
func (c *Controller) done() {
	c.mu.Lock()
	c.inFlight = false
	release := c.releaseLocked()
	c.mu.Unlock()

	if release {
		if err := c.collector.Close(); err != nil {
			c.log.Warnw("close phone normalizers failed", "err", err)
		}
	}
}

// releaseLocked reports whether the caller must close the collector: the
// instance is unmounted and no attempt still reads through it.
func (c *Controller) releaseLocked() bool {
	if c.alive || c.inFlight || c.released {
		return false
	}
	c.released = true
	return true
}
