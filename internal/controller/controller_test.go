// internal/controller/controller_test.go
//
// Unit-tests for the Controller state machine.
//
// Context
// -------
// Every test injects a fake client and a manual clock behind a Recorder UI, so
// phases and UI effects can be asserted deterministically:
//
//   • double submit while a request is in flight    → ErrBusy, one request
//   • network failure then retry with the same data  → Error, then Success
//   • validation failure                             → no request
//   • timers                                         → back to Idle, stale timers ignored
//   • unmount during flight                          → no UI effects
//   • unmount during collection                      → normalizers closed after the attempt
//   • several file fields                            → one MaxFiles budget
//   • instances are isolated

package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yanizio/formkit/internal/form"
	"github.com/yanizio/formkit/internal/journal"
	"github.com/yanizio/formkit/internal/submit"
	"github.com/yanizio/formkit/internal/upload"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeClient struct {
	mu       sync.Mutex
	calls    int32
	outcomes []submit.Outcome
	payloads []submit.Payload
	gate     chan struct{} // when non-nil, Submit blocks until closed
	entered  chan struct{}
}

func (f *fakeClient) Submit(ctx context.Context, endpoint string, p submit.Payload, d submit.Defaults) submit.Outcome {
	n := atomic.AddInt32(&f.calls, 1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	if int(n) <= len(f.outcomes) {
		return f.outcomes[n-1]
	}
	return submit.Outcome{Kind: submit.Success, Message: d.Success}
}

type fakeTimer struct {
	at      time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool { t.stopped = true; return true }

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every pending timer, including stopped ones, so the
// generation check is what keeps stale callbacks inert.
func (c *manualClock) fire() {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range pending {
		t.fn()
	}
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memJournal) Record(_ context.Context, e journal.Entry) error {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
	return nil
}

type closingPhone struct{ closed int32 }

func (p *closingPhone) Number(raw string) string { return raw }
func (p *closingPhone) Valid(string) bool        { return true }
func (p *closingPhone) Close() error             { atomic.AddInt32(&p.closed, 1); return nil }

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

func contactSpec() *form.Spec {
	return &form.Spec{
		ID:          "contact",
		Source:      "contact-page",
		Endpoint:    "https://api.example.com/contact",
		SubmitLabel: "Send",
		BusyLabel:   "Sending...",
		Messages:    form.Messages{Success: "Thanks!", Rejected: "Refused", Network: "Offline"},
		Fields: []form.FieldSpec{
			{Name: "email", Label: "Email", Kind: form.EmailField, Rules: []form.RuleSpec{{Rule: form.RuleRequired}, {Rule: form.RuleEmail}}},
			{Name: "service", Label: "Service", Kind: form.SelectField},
			{Name: "other", Label: "Other service", Kind: form.TextField, Rules: []form.RuleSpec{
				{Rule: form.RuleConditionalRequired, Field: "service", When: "other"},
			}},
			{Name: "phone", Label: "Phone", Kind: form.PhoneField},
		},
		Files: upload.Constraints{}.Normalized(),
	}
}

func mount(t *testing.T, spec *form.Spec, src form.Fields, client *fakeClient) (*Controller, *Recorder, *manualClock) {
	t.Helper()
	ui := NewRecorder("Send")
	clk := &manualClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	c, err := New(spec, Deps{UI: ui, Source: src, Client: client, Clock: clk})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Unmount() })
	return c, ui, clk
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestSubmit_DoubleSubmitGuard(t *testing.T) {
	client := &fakeClient{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c, ui, _ := mount(t, contactSpec(), form.Fields{"email": {"a@b.co"}}, client)

	done := make(chan Attempt)
	go func() {
		a, _ := c.Submit(context.Background())
		done <- a
	}()
	<-client.entered

	if c.Phase() != Submitting {
		t.Fatalf("phase = %v, want submitting", c.Phase())
	}
	if !ui.Disabled || ui.SubmitLabel() != "Sending..." {
		t.Fatalf("button = %q disabled=%v during flight", ui.SubmitLabel(), ui.Disabled)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Submit(context.Background()); !errors.Is(err, ErrBusy) {
			t.Fatalf("second submit err = %v, want ErrBusy", err)
		}
	}

	close(client.gate)
	a := <-done
	if a.Phase != Succeeded {
		t.Fatalf("attempt phase = %v", a.Phase)
	}
	if n := atomic.LoadInt32(&client.calls); n != 1 {
		t.Fatalf("requests = %d, want 1", n)
	}
}

func TestSubmit_NetworkFailureThenRetry(t *testing.T) {
	client := &fakeClient{outcomes: []submit.Outcome{
		{Kind: submit.NetworkFailure, Message: "Offline", Err: errors.New("dial tcp: refused")},
	}}
	c, ui, clk := mount(t, contactSpec(), form.Fields{"email": {"a@b.co"}, "service": {"other"}, "other": {"Audit"}}, client)

	a, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if a.Phase != Failed || a.Result() != "network_failure" || !a.Outcome.Retryable() {
		t.Fatalf("attempt = %+v", a)
	}
	if msg, kind := ui.Snapshot(); msg != "Offline" || kind != ErrorMessage || ui.Scrolls != 1 {
		t.Fatalf("ui = %q/%v scrolls=%d", msg, kind, ui.Scrolls)
	}
	if ui.Resets != 0 || ui.Disabled || ui.SubmitLabel() != "Send" {
		t.Fatalf("error path must keep inputs and restore button: %+v", ui)
	}

	// Retry from Error without waiting for the timer.
	a, err = c.Submit(context.Background())
	if err != nil || a.Phase != Succeeded {
		t.Fatalf("retry = %+v, %v", a, err)
	}
	if msg, kind := ui.Snapshot(); msg != "Thanks!" || kind != SuccessMessage {
		t.Fatalf("ui = %q/%v", msg, kind)
	}
	if ui.Resets != 1 || !ui.Hidden["other"] {
		t.Fatalf("success must reset inputs and hide conditional fields: %+v", ui)
	}
	if diff := cmp.Diff(client.payloads[0], client.payloads[1]); diff != "" {
		t.Fatalf("retry payload differs:\n%s", diff)
	}

	clk.fire()
	if c.Phase() != Idle {
		t.Fatalf("phase after display = %v, want idle", c.Phase())
	}
	if msg, _ := ui.Snapshot(); msg != "" {
		t.Fatalf("success message not dismissed: %q", msg)
	}
}

func TestSubmit_ValidationFailureSkipsNetwork(t *testing.T) {
	client := &fakeClient{}
	c, ui, _ := mount(t, contactSpec(), form.Fields{"email": {"a@b"}}, client)

	a, _ := c.Submit(context.Background())
	if a.Outcome != nil || atomic.LoadInt32(&client.calls) != 0 {
		t.Fatalf("request made on invalid input: %+v", a)
	}
	if a.Result() != "invalid" || a.Message != "Please enter a valid email address" {
		t.Fatalf("attempt = %+v", a)
	}
	if ui.Disabled {
		t.Fatal("button not restored after validation failure")
	}
}

func TestSubmit_SuccessPhaseIgnoresSubmit(t *testing.T) {
	c, _, clk := mount(t, contactSpec(), form.Fields{"email": {"a@b.co"}}, &fakeClient{})

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("submit during success display err = %v, want ErrBusy", err)
	}
	clk.fire()
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("submit after display = %v", err)
	}
}

func TestSubmit_StaleTimerIgnored(t *testing.T) {
	client := &fakeClient{
		outcomes: []submit.Outcome{{Kind: submit.Rejected, Message: "Refused"}},
		entered:  make(chan struct{}, 2),
	}
	c, _, clk := mount(t, contactSpec(), form.Fields{"email": {"a@b.co"}}, client)

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-client.entered

	client.gate = make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = c.Submit(context.Background())
		close(done)
	}()
	<-client.entered

	clk.fire() // the Error timer of the first attempt
	if c.Phase() != Submitting {
		t.Fatalf("stale timer moved phase to %v", c.Phase())
	}
	close(client.gate)
	<-done
}

func TestUnmount_InFlightHasNoUIEffects(t *testing.T) {
	p := &closingPhone{}
	client := &fakeClient{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	ui := NewRecorder("Send")
	clk := &manualClock{}
	c, err := New(contactSpec(), Deps{
		UI: ui, Source: form.Fields{"email": {"a@b.co"}}, Client: client, Clock: clk,
		Phone: func() form.PhoneNormalizer { return p },
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan Attempt)
	go func() {
		a, _ := c.Submit(context.Background())
		done <- a
	}()
	<-client.entered

	if err := c.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	close(client.gate)
	a := <-done

	if a.Phase != Succeeded {
		t.Fatalf("in-flight attempt did not resolve: %+v", a)
	}
	if msg, _ := ui.Snapshot(); msg != "" || ui.Resets != 0 || !ui.Disabled {
		t.Fatalf("UI mutated after unmount: %+v", ui)
	}
	if len(clk.timers) != 0 {
		t.Fatalf("timers scheduled after unmount: %d", len(clk.timers))
	}
	if atomic.LoadInt32(&p.closed) != 1 {
		t.Fatalf("normalizer closed %d times", p.closed)
	}
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrUnmounted) {
		t.Fatalf("submit after unmount err = %v", err)
	}
	if err := c.Unmount(); err != nil {
		t.Fatalf("second Unmount: %v", err)
	}
}

func TestControllers_AreIsolated(t *testing.T) {
	gate := make(chan struct{})
	slow := &fakeClient{gate: gate, entered: make(chan struct{}, 1)}
	modal, modalUI, _ := mount(t, contactSpec(), form.Fields{"email": {"a@b.co"}}, slow)
	page, pageUI, _ := mount(t, contactSpec(), form.Fields{"email": {"bad"}}, &fakeClient{})

	go func() { _, _ = modal.Submit(context.Background()) }()
	<-slow.entered

	if _, err := page.Submit(context.Background()); err != nil {
		t.Fatalf("page submit blocked by modal: %v", err)
	}
	if msg, _ := pageUI.Snapshot(); msg == "" {
		t.Fatal("page error not shown")
	}
	if msg, _ := modalUI.Snapshot(); msg != "" {
		t.Fatalf("modal shows page message %q", msg)
	}
	close(gate)
}

func TestFiles_EncodedIntoPayloadAndCleared(t *testing.T) {
	spec := contactSpec()
	spec.Fields = append(spec.Fields, form.FieldSpec{Name: "resume", Label: "Resume", Kind: form.FileField,
		Rules: []form.RuleSpec{{Rule: form.RuleRequired}}})
	spec.Files = upload.Constraints{MaxFiles: 1, AllowedExtensions: []string{"pdf"}}.Normalized()

	client := &fakeClient{}
	jr := &memJournal{}
	ui := NewRecorder("Apply")
	clk := &manualClock{}
	c, err := New(spec, Deps{UI: ui, Source: form.Fields{"email": {"a@b.co"}}, Client: client, Clock: clk, Journal: jr})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Unmount()

	fe, err := c.Drop("resume", upload.Bytes("virus.exe", "", []byte("MZ")))
	if err != nil || len(fe) != 1 || len(ui.FileMessages) != 1 {
		t.Fatalf("drop = %v, %v; messages %v", fe, err, ui.FileMessages)
	}
	if _, err := c.Select("email", upload.Bytes("a.pdf", "", nil)); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("select on text field err = %v", err)
	}

	a, _ := c.Submit(context.Background())
	if a.Result() != "invalid" || a.Message != "Please upload your resume" {
		t.Fatalf("missing file attempt = %+v", a)
	}

	if _, err := c.Select("resume", upload.Bytes("cv.pdf", "", []byte("%PDF-1.4"))); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"cv.pdf"}, ui.Previews["resume"]); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}

	a, _ = c.Submit(context.Background())
	if a.Phase != Succeeded || a.Files != 1 {
		t.Fatalf("attempt = %+v", a)
	}
	descs := client.payloads[0]["files"].([]upload.Descriptor)
	if len(descs) != 1 || descs[0].Extension != ".pdf" || descs[0].Data == "" {
		t.Fatalf("files = %+v", descs)
	}
	if _, ok := client.payloads[0]["resume"]; ok {
		t.Fatal("file field leaked into flat payload")
	}
	if len(c.Files("resume")) != 0 || len(ui.Previews["resume"]) != 0 {
		t.Fatal("tray not cleared after success")
	}

	if len(jr.entries) != 2 || jr.entries[0].Result != "invalid" || jr.entries[1].Result != "success" {
		t.Fatalf("journal = %+v", jr.entries)
	}
	if jr.entries[1].FileCount != 1 || jr.entries[1].FormID != "contact" {
		t.Fatalf("journal entry = %+v", jr.entries[1])
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(contactSpec(), Deps{UI: NewRecorder("")}); err == nil {
		t.Fatal("expected error for missing Source and Client")
	}
	c, err := New(contactSpec(), Deps{UI: NewRecorder(""), Source: form.Fields{}, Client: &fakeClient{}})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Unmount()
	if c.label != "Send" {
		t.Fatalf("fallback label = %q", c.label)
	}
}

// blockingSource parks the collector inside Values until release is closed.
type blockingSource struct {
	form.Fields
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSource) Values(name string) []string {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Fields.Values(name)
}

func TestUnmount_DuringValidationDefersNormalizerClose(t *testing.T) {
	p := &closingPhone{}
	src := &blockingSource{
		Fields:  form.Fields{"email": {"a@b.co"}, "phone": {"+16502530000"}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ui := NewRecorder("Send")
	c, err := New(contactSpec(), Deps{
		UI: ui, Source: src, Client: &fakeClient{}, Clock: &manualClock{},
		Phone: func() form.PhoneNormalizer { return p },
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan Attempt)
	go func() {
		a, _ := c.Submit(context.Background())
		done <- a
	}()
	<-src.entered

	if err := c.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if n := atomic.LoadInt32(&p.closed); n != 0 {
		t.Fatalf("normalizer closed %d times while collecting", n)
	}

	close(src.release)
	a := <-done
	if a.Phase != Succeeded {
		t.Fatalf("attempt = %+v", a)
	}
	if n := atomic.LoadInt32(&p.closed); n != 1 {
		t.Fatalf("normalizer closed %d times after attempt, want 1", n)
	}
	if err := c.Unmount(); err != nil || atomic.LoadInt32(&p.closed) != 1 {
		t.Fatalf("second Unmount = %v, closed %d", err, p.closed)
	}
}

func twoFileSpec() *form.Spec {
	spec := contactSpec()
	spec.Fields = append(spec.Fields,
		form.FieldSpec{Name: "resume", Label: "Resume", Kind: form.FileField},
		form.FieldSpec{Name: "portfolio", Label: "Portfolio", Kind: form.FileField},
	)
	spec.Files = upload.Constraints{MaxFiles: 2, AllowedExtensions: []string{"pdf"}}.Normalized()
	return spec
}

func TestFiles_MaxFilesSpansEveryFileField(t *testing.T) {
	client := &fakeClient{}
	c, ui, _ := mount(t, twoFileSpec(), form.Fields{"email": {"a@b.co"}}, client)

	if fe, err := c.Select("resume", upload.Bytes("1.pdf", "", []byte("1")), upload.Bytes("2.pdf", "", []byte("2"))); err != nil || len(fe) != 0 {
		t.Fatalf("resume select = %v, %v", fe, err)
	}
	fe, err := c.Select("portfolio", upload.Bytes("3.pdf", "", []byte("3")), upload.Bytes("4.pdf", "", []byte("4")))
	if err != nil || len(fe) != 2 || fe[0].Kind != upload.ErrCount {
		t.Fatalf("portfolio select = %+v, %v; want two count errors", fe, err)
	}
	if len(ui.FileMessages) != 2 {
		t.Fatalf("file messages = %v", ui.FileMessages)
	}

	a, _ := c.Submit(context.Background())
	if a.Phase != Succeeded || a.Files != 2 {
		t.Fatalf("attempt = %+v", a)
	}
	if descs := client.payloads[0]["files"].([]upload.Descriptor); len(descs) != 2 {
		t.Fatalf("files in payload = %d, want 2", len(descs))
	}

	// Success empties every tray, which frees the whole budget.
	if fe, _ := c.Select("portfolio", upload.Bytes("3.pdf", "", []byte("3")), upload.Bytes("4.pdf", "", []byte("4"))); len(fe) != 0 {
		t.Fatalf("budget not freed after success: %+v", fe)
	}
}

func TestRemoveFile_RefreshesPreviewAndFreesSlot(t *testing.T) {
	c, ui, _ := mount(t, twoFileSpec(), form.Fields{"email": {"a@b.co"}}, &fakeClient{})

	if _, err := c.Select("resume", upload.Bytes("1.pdf", "", []byte("1")), upload.Bytes("2.pdf", "", []byte("2"))); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveFile("resume", 0); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if diff := cmp.Diff([]string{"2.pdf"}, ui.Previews["resume"]); diff != "" {
		t.Fatalf("preview mismatch (-want +got):\n%s", diff)
	}

	if fe, _ := c.Select("portfolio", upload.Bytes("3.pdf", "", []byte("3"))); len(fe) != 0 {
		t.Fatalf("freed slot refused: %+v", fe)
	}
	if err := c.RemoveFile("resume", 7); err != nil {
		t.Fatalf("out-of-range RemoveFile: %v", err)
	}
	if len(c.Files("resume")) != 1 {
		t.Fatalf("resume files = %d, want 1", len(c.Files("resume")))
	}
	if err := c.RemoveFile("email", 0); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("RemoveFile on text field err = %v", err)
	}
}
