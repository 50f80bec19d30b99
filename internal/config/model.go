// internal/config/model.go
//
// Typed configuration model for Formkit.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                           – dotenv values,
//   • `conf/formkit.yaml`                       – primary static file,
//   • `FORMKIT_`-prefixed environment overrides – highest precedence.
//
// Validation happens immediately after unmarshal; the binary fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml`
//     tags unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Durations are Go duration strings ("5s", "1m30s").

package config

import "time"

//
// HTTP section
//

// HTTP holds relay-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Forms section
//

// Forms lists definition directories in precedence order.  Relative paths
// resolve against Paths.Root.
type Forms struct {
	Dirs []string `koanf:"dirs" validate:"required,min=1,dive,required"`
}

//
// Submit section
//

// Submit configures the outbound client.  Zero Timeout means no bound.
type Submit struct {
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

//
// Controller section
//

// Controller holds state-machine timings.
type Controller struct {
	DisplayFor time.Duration `koanf:"display_for" validate:"gte=0"`
}

//
// Phone section
//

// Phone selects the default region for national-format numbers.
type Phone struct {
	Region string `koanf:"region" validate:"omitempty,len=2,alpha"`
}

//
// Journal section
//

// Journal enables attempt journaling when DSN is set.
type Journal struct {
	DSN string `koanf:"dsn"`
}

//
// Log section
//

// Log controls the file logger.  Dir is relative to Paths.Root unless
// absolute.  Tee also writes to stdout.
type Log struct {
	Dir   string `koanf:"dir"`
	Tee   bool   `koanf:"tee"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or FORMKIT_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // FORMKIT_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load().
type Config struct {
	HTTP       HTTP       `koanf:"http"`
	Forms      Forms      `koanf:"forms"`
	Submit     Submit     `koanf:"submit"`
	Controller Controller `koanf:"controller"`
	Phone      Phone      `koanf:"phone"`
	Journal    Journal    `koanf:"journal"`
	Log        Log        `koanf:"log"`
	Paths      Paths      `koanf:"-"` // not loaded from config files
}
