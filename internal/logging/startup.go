package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects build identity, configuration, resources, and
// feature flags, then emits a single structured zerolog event summarising
// how the kiosk was configured when a command started.
type StartupLogger struct {
	name         string
	version      string
	commitHash   string
	initDuration time.Duration

	endpoints map[string]string
	devices   map[string]string
	ssmParams map[string]string
	files     map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger creates a StartupLogger for the given command name
// (e.g. "scan", "login").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		endpoints: make(map[string]string),
		devices:   make(map[string]string),
		ssmParams: make(map[string]string),
		files:     make(map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// Version sets the release version baked into the binary at build time.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// Endpoint registers a remote API base URL.
func (s *StartupLogger) Endpoint(label, url string) *StartupLogger {
	s.endpoints[label] = url
	return s
}

// Device registers a capture device or frame source.
func (s *StartupLogger) Device(label, input string) *StartupLogger {
	s.devices[label] = input
	return s
}

// SSMParam registers an SSM parameter path. Only the path is logged,
// never the value. Empty paths are ignored.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	if path != "" {
		s.ssmParams[label] = path
	}
	return s
}

// File registers a local file the command reads or writes. Empty paths are
// ignored.
func (s *StartupLogger) File(label, path string) *StartupLogger {
	if path != "" {
		s.files[label] = path
	}
	return s
}

// Feature registers a boolean feature flag (e.g. "dialogs", "metrics").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	appDict := zerolog.Dict().
		Str("command", s.name).
		Str("goVersion", runtime.Version()).
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Str("logLevel", EnvOrDefault(LevelEnv, "info"))

	if s.version != "" {
		appDict = appDict.Str("version", s.version)
	}
	if s.commitHash != "" {
		appDict = appDict.Str("commitHash", s.commitHash)
	}
	if host, err := os.Hostname(); err == nil {
		appDict = appDict.Str("host", host)
	}

	evt = evt.Dict("app", appDict)

	resources := zerolog.Dict()
	attached := 0
	for _, group := range []struct {
		key    string
		values map[string]string
	}{
		{"endpoints", s.endpoints},
		{"devices", s.devices},
		{"ssmParams", s.ssmParams},
		{"files", s.files},
	} {
		if len(group.values) == 0 {
			continue
		}
		resources = resources.Dict(group.key, dictFromMap(group.values))
		attached++
	}
	if attached > 0 {
		evt = evt.Dict("resources", resources)
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Check-in client started")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
