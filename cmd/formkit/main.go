// cmd/formkit/main.go
//
// Formkit – command-line entry point.
//
// Commands
// --------
//
//   • check   – load every form definition and report problems.
//   • submit  – run one attempt from a values file (and optional files)
//               against a form's live endpoint.
//   • serve   – start the relay (POST /forms/{id}, /healthz, /metrics).
//
// Bootstrap order is the same for every command: config (koanf layers),
// logger (zap + lumberjack), then the form registry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yanizio/formkit/internal/config"
	"github.com/yanizio/formkit/internal/form"
	"github.com/yanizio/formkit/internal/logger"
	"github.com/yanizio/formkit/internal/metrics"
	"github.com/yanizio/formkit/internal/phone"
)

var (
	formDirs []string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "formkit",
	Short: "Declarative form validation and submission relay",
	Long: `Formkit loads YAML form definitions, validates submissions against
their rules, encodes attached files, and relays the result to each form's
submission endpoint.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&formDirs, "forms", nil, "form definition directories, highest precedence first (overrides forms.dirs)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(checkCmd, submitCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is what every command needs after bootstrap.
type env struct {
	cfg *config.Config
	log *zap.SugaredLogger
	reg *form.Registry
}

func bootstrap() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log, err := logger.New(cfg.Abs(cfg.Log.Dir), cfg.Log.Tee || logger.RunningInTTY(), level)
	if err != nil {
		return nil, fmt.Errorf("start logger: %w", err)
	}

	dirs := cfg.FormDirs()
	if len(formDirs) > 0 {
		dirs = formDirs
	}
	reg := form.NewRegistry()
	if err := reg.LoadDirs(dirs...); err != nil {
		return nil, fmt.Errorf("load forms: %w", err)
	}
	metrics.FormsLoaded.Set(float64(len(reg.IDs())))
	log.Infow("forms loaded", "count", len(reg.IDs()), "dirs", dirs)

	return &env{cfg: cfg, log: log, reg: reg}, nil
}

// phoneFactory returns a normalizer constructor for the configured region.
func (e *env) phoneFactory() func() form.PhoneNormalizer {
	region := e.cfg.Phone.Region
	return func() form.PhoneNormalizer { return phone.New(region) }
}
