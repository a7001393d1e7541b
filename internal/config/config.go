package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the simulation service listens on.
	DefaultAddr = ":43200"
	// DefaultPingInterval controls the keepalive cadence for WebSocket viewers.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxClients bounds concurrent WebSocket viewers. Zero disables the limit.
	DefaultMaxClients = 64

	// DefaultTimestep is the fixed physics timestep in seconds.
	DefaultTimestep = 1.0 / 60.0
	// DefaultSpeed is the motion amplification multiplier applied to scripted impulses.
	DefaultSpeed = 3.0
	// DefaultGravityConst is tuned for visual stability, far below the physical constant.
	DefaultGravityConst = 6.6743e-11
	// DefaultMinDistanceSq is the squared-distance floor for the pairwise force cutoff.
	DefaultMinDistanceSq = 1.0
	// DefaultRestitution is the fraction of vertical velocity kept after a surface bounce.
	DefaultRestitution = 0.8
	// DefaultRestThreshold snaps slower vertical bounces to rest.
	DefaultRestThreshold = 0.1
	// DefaultSurfaceY is the height of the ground plane.
	DefaultSurfaceY = -2.0

	// DefaultReplayDumpWindow bounds how frequently replay dumps may be requested.
	DefaultReplayDumpWindow = time.Minute
	// DefaultReplayDumpBurst sets how many replay dumps may be made per window.
	DefaultReplayDumpBurst = 1

	// DefaultLogLevel controls verbosity for service logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "sim.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Physics groups the engine tunables loaded from the environment.
type Physics struct {
	Timestep      float64
	Speed         float64
	GravityConst  float64
	ExternalField [3]float64
	MinDistanceSq float64
	Restitution   float64
	RestThreshold float64
	DecayLambda   float64
	SurfaceY      float64
	EscapeRadius  float64
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config captures all runtime tunables for the simulation service.
type Config struct {
	Address          string
	AllowedOrigins   []string
	PingInterval     time.Duration
	MaxClients       int
	AdminToken       string
	ScenePath        string
	Physics          Physics
	ReplayDir        string
	ReplayDumpWindow time.Duration
	ReplayDumpBurst  int
	Logging          LoggingConfig
}

// Load reads the service configuration from environment variables, applying
// sane defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:        getString("SIM_ADDR", DefaultAddr),
		AllowedOrigins: parseList(os.Getenv("SIM_ALLOWED_ORIGINS")),
		PingInterval:   DefaultPingInterval,
		MaxClients:     DefaultMaxClients,
		AdminToken:     strings.TrimSpace(os.Getenv("SIM_ADMIN_TOKEN")),
		ScenePath:      strings.TrimSpace(os.Getenv("SIM_SCENE_PATH")),
		Physics: Physics{
			Timestep:      DefaultTimestep,
			Speed:         DefaultSpeed,
			GravityConst:  DefaultGravityConst,
			MinDistanceSq: DefaultMinDistanceSq,
			Restitution:   DefaultRestitution,
			RestThreshold: DefaultRestThreshold,
			SurfaceY:      DefaultSurfaceY,
		},
		ReplayDir:        strings.TrimSpace(os.Getenv("SIM_REPLAY_DIR")),
		ReplayDumpWindow: DefaultReplayDumpWindow,
		ReplayDumpBurst:  DefaultReplayDumpBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("SIM_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("SIM_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("SIM_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SIM_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIM_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	loadFloat := func(key string, dst *float64, validate func(float64) bool, hint string) {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || !validate(value) {
			problems = append(problems, fmt.Sprintf("%s must be %s, got %q", key, hint, raw))
			return
		}
		*dst = value
	}

	positive := func(v float64) bool { return v > 0 }
	nonNegative := func(v float64) bool { return v >= 0 }
	any := func(float64) bool { return true }

	loadFloat("SIM_TIMESTEP", &cfg.Physics.Timestep, positive, "a positive number of seconds")
	loadFloat("SIM_SPEED", &cfg.Physics.Speed, positive, "a positive multiplier")
	loadFloat("SIM_GRAVITY_CONST", &cfg.Physics.GravityConst, nonNegative, "a non-negative number")
	loadFloat("SIM_MIN_DISTANCE_SQ", &cfg.Physics.MinDistanceSq, nonNegative, "a non-negative number")
	loadFloat("SIM_RESTITUTION", &cfg.Physics.Restitution, func(v float64) bool { return v >= 0 && v <= 1 }, "between 0 and 1")
	loadFloat("SIM_REST_THRESHOLD", &cfg.Physics.RestThreshold, nonNegative, "a non-negative number")
	loadFloat("SIM_DECAY_LAMBDA", &cfg.Physics.DecayLambda, nonNegative, "a non-negative number")
	loadFloat("SIM_SURFACE_Y", &cfg.Physics.SurfaceY, any, "a number")
	loadFloat("SIM_ESCAPE_RADIUS", &cfg.Physics.EscapeRadius, nonNegative, "a non-negative number")

	if raw := strings.TrimSpace(os.Getenv("SIM_EXTERNAL_FIELD")); raw != "" {
		field, err := parseTriple(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SIM_EXTERNAL_FIELD must be three comma separated numbers, got %q", raw))
		} else {
			cfg.Physics.ExternalField = field
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_REPLAY_DUMP_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("SIM_REPLAY_DUMP_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReplayDumpWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_REPLAY_DUMP_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIM_REPLAY_DUMP_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ReplayDumpBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("SIM_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIM_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("SIM_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("SIM_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SIM_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func parseTriple(raw string) ([3]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 components, got %d", len(parts))
	}
	var triple [3]float64
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return [3]float64{}, fmt.Errorf("component %d: %q", i, part)
		}
		triple[i] = value
	}
	return triple, nil
}
