// Package config loads kiosk settings from defaults, an optional .env file,
// CHECKIN_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fpang/qr-checkin/internal/validation"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "CHECKIN"

// Keys.
const (
	KeyAPIURL         = "api_url"
	KeyAPIURLSSMParam = "api_url_ssm_param"
	KeySessionFile    = "session_file"
	KeyJournalFile    = "journal_file"
	KeyJournalTable   = "journal_table"
	KeyExportBucket   = "export_bucket"
	KeyMetricsFile    = "metrics_file"
	KeyKioskID        = "kiosk_id"
	KeyDevice         = "device"
	KeyRearDevice     = "rear_device"
	KeyInputFormat    = "input_format"
	KeyFramesDir      = "frames_dir"
	KeyTimeout        = "timeout"
	KeyDialogs        = "dialogs"
	KeyRequirePro     = "require_pro"
)

// DefaultAPIURL is used when nothing else is configured.
const DefaultAPIURL = "http://localhost:8080/api"

// Config is the resolved configuration.
type Config struct {
	APIURL         string        `mapstructure:"api_url" validate:"required,httpurl"`
	APIURLSSMParam string        `mapstructure:"api_url_ssm_param"`
	SessionFile    string        `mapstructure:"session_file" validate:"required"`
	JournalFile    string        `mapstructure:"journal_file" validate:"required"`
	JournalTable   string        `mapstructure:"journal_table"`
	ExportBucket   string        `mapstructure:"export_bucket"`
	MetricsFile    string        `mapstructure:"metrics_file"`
	KioskID        string        `mapstructure:"kiosk_id"`
	Device         string        `mapstructure:"device"`
	RearDevice     string        `mapstructure:"rear_device"`
	InputFormat    string        `mapstructure:"input_format"`
	FramesDir      string        `mapstructure:"frames_dir"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"`
	Dialogs        bool          `mapstructure:"dialogs"`
	RequirePro     bool          `mapstructure:"require_pro"`

	// Source describes where the API URL came from (default, env, flag, ssm).
	Source string `mapstructure:"-"`
}

// Options controls Load.
type Options struct {
	// DotEnv is an optional .env file. A missing file is ignored.
	DotEnv string
	// Flags are bound over environment values when set on the command line.
	Flags *pflag.FlagSet
}

// New returns a viper instance with defaults and environment binding.
func New(dataDir string) *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyAPIURLSSMParam, "")
	v.SetDefault(KeySessionFile, dataDir+string(os.PathSeparator)+"session.json")
	v.SetDefault(KeyJournalFile, dataDir+string(os.PathSeparator)+"journal.jsonl")
	v.SetDefault(KeyJournalTable, "")
	v.SetDefault(KeyExportBucket, "")
	v.SetDefault(KeyMetricsFile, "")
	v.SetDefault(KeyKioskID, "")
	v.SetDefault(KeyDevice, "")
	v.SetDefault(KeyRearDevice, "")
	v.SetDefault(KeyInputFormat, "")
	v.SetDefault(KeyFramesDir, "")
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetDefault(KeyDialogs, true)
	v.SetDefault(KeyRequirePro, true)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// DataDir returns the per-user directory for session and journal files.
func DataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir + string(os.PathSeparator) + "qr-checkin"
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	if opts.DotEnv != "" {
		if _, err := os.Stat(opts.DotEnv); err == nil {
			if err := godotenv.Load(opts.DotEnv); err != nil {
				return nil, fmt.Errorf("load %s: %w", opts.DotEnv, err)
			}
			log.Debug().Str("path", opts.DotEnv).Msg("Loaded .env file")
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", opts.DotEnv, err)
		}
	}

	v := New(DataDir())
	if err := bindFlags(v, opts.Flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if opts.Flags != nil {
		if f := opts.Flags.Lookup("no-dialogs"); f != nil && f.Changed && f.Value.String() == "true" {
			cfg.Dialogs = false
		}
	}
	cfg.Source = source(opts.Flags)

	if err := validation.Struct(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"api-url":      KeyAPIURL,
	"device":       KeyDevice,
	"rear-device":  KeyRearDevice,
	"input-format": KeyInputFormat,
	"frames-dir":   KeyFramesDir,
	"timeout":      KeyTimeout,
	"journal":      KeyJournalFile,
	"session-file": KeySessionFile,
}

// bindFlags binds the flags present in flags; unset flags leave the
// environment value in place.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// source reports which layer provided the API URL.
func source(flags *pflag.FlagSet) string {
	if flags != nil {
		if f := flags.Lookup("api-url"); f != nil && f.Changed {
			return "flag"
		}
	}
	if os.Getenv(EnvPrefix+"_API_URL") != "" {
		return "env"
	}
	return "default"
}
