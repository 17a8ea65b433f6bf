package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/adaptive-refresh/internal/catalog"
)

// ErrInvalidModes is returned when a mode list cannot be parsed.
var ErrInvalidModes = errors.New("config: invalid mode list")

// DefaultModes is a 60/90/120Hz panel in a single group.
const DefaultModes = "0:0:16666667,1:0:11111111,2:0:8333333"

type DisplayCfg struct {
	ID         string
	Modes      []catalog.Input
	ActiveMode catalog.ModeID
}

type PersistCfg struct {
	Enabled   bool
	RedisAddr string
	OpTimeout time.Duration
}

type TouchCfg struct {
	HalfLife  time.Duration
	Threshold float64
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr               string
	LogLevel           string
	LogConsole         bool
	LogSampleN         int
	ShutdownTimeout    time.Duration
	SelectionCacheSize int
	Display            DisplayCfg
	Persist            PersistCfg
	Touch              TouchCfg
	Metrics            MetricsCfg
}

func FromEnv() (Config, error) {
	modes, err := ParseModes(getenv("DISPLAY_MODES", DefaultModes))
	if err != nil {
		return Config{}, err
	}

	threshold := getfloat("TOUCH_THRESHOLD", 1.0)
	if threshold <= 0 {
		threshold = 1.0
	}

	return Config{
		Addr:               getenv("ADDR", ":8095"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogConsole:         getbool("LOG_CONSOLE", false),
		LogSampleN:         getint("LOG_SAMPLE_N", 0),
		ShutdownTimeout:    getduration("SHUTDOWN_TIMEOUT", 5*time.Second),
		SelectionCacheSize: getint("SELECTION_CACHE_SIZE", 256),
		Display: DisplayCfg{
			ID:         getenv("DISPLAY_ID", "display-0"),
			Modes:      modes,
			ActiveMode: catalog.ModeID(getint("DISPLAY_ACTIVE_MODE", int(modes[0].ID))),
		},
		Persist: PersistCfg{
			Enabled:   getbool("PERSIST_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			OpTimeout: getduration("PERSIST_OP_TIMEOUT", 250*time.Millisecond),
		},
		Touch: TouchCfg{
			HalfLife:  getduration("TOUCH_HALF_LIFE", 500*time.Millisecond),
			Threshold: threshold,
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}, nil
}

// ParseModes decodes "id:group:period_ns" entries separated by commas.
// Range checks (duplicates, positive periods) are left to catalog.New.
func ParseModes(s string) ([]catalog.Input, error) {
	var out []catalog.Input
	for entry := range strings.SplitSeq(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q: want id:group:period_ns", ErrInvalidModes, entry)
		}
		id, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: id: %v", ErrInvalidModes, entry, err)
		}
		group, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: group: %v", ErrInvalidModes, entry, err)
		}
		period, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: period: %v", ErrInvalidModes, entry, err)
		}
		out = append(out, catalog.Input{
			ID:          catalog.ModeID(id),
			Group:       catalog.GroupID(group),
			VsyncPeriod: period,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidModes)
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
