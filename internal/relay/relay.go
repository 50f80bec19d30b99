// internal/relay/relay.go
//
// Formkit – Relay: HTTP host for form controllers.
//
// Context
//   The relay lets plain HTML forms (or any client that can POST a form) use
//   the toolkit without running it in the page.  Each POST mounts a fresh
//   Controller over the posted values and feeds multipart files through
//   the field's tray.  One attempt runs; its final UI state is rendered
//   as JSON.
//   Instances never outlive their request.
//
// Routes
//   •  GET  /healthz           – liveness, returns "ok".
//   •  GET  /metrics           – Prometheus exposition.
//   •  GET  /forms             – registered form IDs.
//   •  POST /forms/{id}        – submit; JSON {success, message, error, phase}.
//   •  POST /forms/{id}/check  – dry run: validate only, nothing is sent.
//
//------------------------------------------------------------------------------

package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/formkit/internal/controller"
	"github.com/yanizio/formkit/internal/form"
	"github.com/yanizio/formkit/internal/middleware"
	"github.com/yanizio/formkit/internal/upload"
)

// Options configure a relay Handler.  Registry and Client are required.
type Options struct {
	Registry   *form.Registry
	Client     controller.Submitter
	Phone      func() form.PhoneNormalizer
	Journal    controller.Journal
	DisplayFor time.Duration
	ForceHTTPS bool
	Log        *zap.SugaredLogger
}

// Response is the JSON body of POST /forms/{id}.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Phase   string   `json:"phase"`
	Files   []string `json:"files,omitempty"` // per-file rejection messages
}

// CheckResponse is the JSON body of POST /forms/{id}/check.
type CheckResponse struct {
	Valid  bool     `json:"valid"`
	Error  string   `json:"error,omitempty"`  // message the form would show
	Errors []string `json:"errors,omitempty"` // every failing field, in order
	Files  []string `json:"files,omitempty"`
}

type relay struct {
	opts Options
	log  *zap.SugaredLogger
}

// Handler builds the chi router.
func Handler(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = zap.S()
	}
	rl := &relay{opts: opts, log: opts.Log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog(rl.log))
	r.Use(middleware.Security)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/forms", rl.list)
	r.Post("/forms/{id}", rl.submit)
	r.Post("/forms/{id}/check", rl.check)

	return middleware.ForceHTTPS(opts.ForceHTTPS, r)
}

func (rl *relay) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"forms": rl.opts.Registry.IDs()})
}

func (rl *relay) submit(w http.ResponseWriter, r *http.Request) {
	spec, err := rl.opts.Registry.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, Response{Error: "Unknown form", Phase: controller.Failed.String()})
		return
	}
	if err := form.ParseRequest(r); err != nil {
		rl.log.Warnw("relay parse failed", "form", spec.ID, "err", err)
		writeJSON(w, http.StatusBadRequest, Response{Error: "Malformed form submission", Phase: controller.Failed.String()})
		return
	}

	ui := controller.NewRecorder(spec.SubmitLabel)
	c, err := controller.New(spec, controller.Deps{
		UI:         ui,
		Source:     form.FromValues(r.PostForm),
		Client:     rl.opts.Client,
		Phone:      rl.opts.Phone,
		Journal:    rl.opts.Journal,
		DisplayFor: rl.opts.DisplayFor,
		Log:        rl.log,
	})
	if err != nil {
		rl.log.Errorw("relay mount failed", "form", spec.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: spec.Messages.Network, Phase: controller.Failed.String()})
		return
	}
	defer c.Unmount()

	if rejected := rl.attach(c, spec, r); len(rejected) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, Response{
			Error: rejected[0],
			Phase: controller.Failed.String(),
			Files: rejected,
		})
		return
	}

	a, err := c.Submit(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, controller.ErrBusy) {
			status = http.StatusConflict
		}
		writeJSON(w, status, Response{Error: err.Error(), Phase: c.Phase().String()})
		return
	}

	writeJSON(w, statusFor(a), render(a))
}

// attach routes multipart files into the trays and returns every refusal
// message.
func (rl *relay) attach(c *controller.Controller, spec *form.Spec, r *http.Request) []string {
	if r.MultipartForm == nil {
		return nil
	}
	var msgs []string
	for _, name := range spec.FileFields() {
		headers := r.MultipartForm.File[name]
		if len(headers) == 0 {
			continue
		}
		files := make([]upload.File, len(headers))
		for i, fh := range headers {
			files[i] = upload.FromHeader(fh)
		}
		errs, err := c.Select(name, files...)
		if err != nil {
			msgs = append(msgs, err.Error())
			continue
		}
		for _, fe := range errs {
			msgs = append(msgs, fe.Message)
		}
	}
	return msgs
}

// check validates a posted form without mounting a controller or calling
// upstream.  Files still go through the form's MaxFiles budget.
func (rl *relay) check(w http.ResponseWriter, r *http.Request) {
	spec, err := rl.opts.Registry.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, CheckResponse{Error: "Unknown form"})
		return
	}

	var refused []string
	opts := []form.CollectorOption{form.WithLogger(rl.log.With("form", spec.ID))}
	budget := upload.NewBudget()
	for _, name := range spec.FileFields() {
		opts = append(opts, form.WithFiles(name, &postedFiles{
			r:       r,
			name:    name,
			tray:    upload.NewSharedTray(spec.Files, budget),
			refused: &refused,
		}))
	}
	if rl.opts.Phone != nil {
		for _, name := range spec.PhoneFields() {
			opts = append(opts, form.WithPhone(name, rl.opts.Phone()))
		}
	}
	col := form.NewCollector(opts...)
	defer col.Close()

	_, err = form.Check(spec, col, r)
	switch {
	case err == nil && len(refused) == 0:
		writeJSON(w, http.StatusOK, CheckResponse{Valid: true})
	case err == nil:
		writeJSON(w, http.StatusUnprocessableEntity, CheckResponse{Error: refused[0], Files: refused})
	case form.IsValidationError(err):
		var ve form.ValidationError
		errors.As(err, &ve)
		res := form.Result{Errors: ve.Fields}
		writeJSON(w, http.StatusUnprocessableEntity, CheckResponse{Error: res.First(), Errors: res.Messages(), Files: refused})
	default:
		rl.log.Warnw("relay parse failed", "form", spec.ID, "err", err)
		writeJSON(w, http.StatusBadRequest, CheckResponse{Error: "Malformed form submission"})
	}
}

// postedFiles lists the multipart files of one field once the body has
// been parsed, keeping only what the tray accepts.
type postedFiles struct {
	r       *http.Request
	name    string
	tray    *upload.Tray
	refused *[]string
}

func (p *postedFiles) Files() []upload.File {
	if p.r.MultipartForm != nil && p.tray.Len() == 0 {
		headers := p.r.MultipartForm.File[p.name]
		files := make([]upload.File, len(headers))
		for i, fh := range headers {
			files[i] = upload.FromHeader(fh)
		}
		for _, fe := range p.tray.Select(files...) {
			*p.refused = append(*p.refused, fe.Message)
		}
	}
	return p.tray.Files()
}

func render(a controller.Attempt) Response {
	resp := Response{Success: a.Phase == controller.Succeeded, Phase: a.Phase.String()}
	if resp.Success {
		resp.Message = a.Message
	} else {
		resp.Error = a.Message
	}
	return resp
}

func statusFor(a controller.Attempt) int {
	switch a.Result() {
	case "success", "rejected":
		return http.StatusOK
	case "invalid":
		return http.StatusUnprocessableEntity
	case "network_failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
