package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrConfigExists is returned by CreateDefault when a config file is already present.
var ErrConfigExists = errors.New("config file already exists")

// Config represents the main configuration
type Config struct {
	// Workspace holds the mirror documents (status and change log).
	Workspace string          `toml:"workspace"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Budget    BudgetConfig    `toml:"budget"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Runner    RunnerConfig    `toml:"runner"`
	Watch     WatchConfig     `toml:"watch"`
}

// LoggingConfig controls the slog logger
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// RateLimitConfig configures the sliding-window token limiter
type RateLimitConfig struct {
	Enabled     bool           `toml:"enabled"`
	GlobalLimit int            `toml:"global_limit"` // tokens per 60s window
	Agents      map[string]int `toml:"agents"`       // per-agent overrides, -1 = unlimited
}

// BudgetConfig configures cumulative per-agent token budgets
type BudgetConfig struct {
	DefaultMaxTokens int            `toml:"default_max_tokens"`
	Counter          string         `toml:"counter"`  // approx or tiktoken
	Encoding         string         `toml:"encoding"` // tiktoken encoding name
	Agents           map[string]int `toml:"agents"`
}

// LedgerConfig configures the shared build ledger
type LedgerConfig struct {
	StatusFile  string `toml:"status_file"`
	ChangesFile string `toml:"changes_file"`
	MaxPatches  int    `toml:"max_patches"`
	OutputLines int    `toml:"output_lines"`
}

// RunnerConfig configures the external build/test command runner
type RunnerConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// WatchConfig configures rebuild-on-change
type WatchConfig struct {
	Paths      []string `toml:"paths"`
	Ignore     []string `toml:"ignore"`
	DebounceMS int      `toml:"debounce_ms"`
}

// Defaults for missing values.
const (
	DefaultWorkspace        = ".crewgate"
	DefaultGlobalLimit      = 100000
	DefaultMaxTokens        = 200000
	DefaultMaxPatches       = 50
	DefaultOutputLines      = 500
	DefaultTimeoutSeconds   = 300
	DefaultDebounceMS       = 500
	DefaultCounter          = "approx"
	DefaultEncoding         = "cl100k_base"
	DefaultStatusFile       = "BUILD_STATUS.md"
	DefaultChangesFile      = "CHANGES.md"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	configDirName           = "crewgate"
	configFileName          = "config.toml"
	envPrefix               = "CREWGATE_"
	unlimitedAgentLimitNote = "-1 = unlimited"
)

// DefaultPath returns the default config file path
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDirName, configFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", configDirName, configFileName)
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Workspace: DefaultWorkspace,
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			GlobalLimit: DefaultGlobalLimit,
			Agents:      map[string]int{},
		},
		Budget: BudgetConfig{
			DefaultMaxTokens: DefaultMaxTokens,
			Counter:          DefaultCounter,
			Encoding:         DefaultEncoding,
			Agents:           map[string]int{},
		},
		Ledger: LedgerConfig{
			StatusFile:  DefaultStatusFile,
			ChangesFile: DefaultChangesFile,
			MaxPatches:  DefaultMaxPatches,
			OutputLines: DefaultOutputLines,
		},
		Runner: RunnerConfig{
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Watch: WatchConfig{
			Paths:      []string{"."},
			Ignore:     []string{".git", DefaultWorkspace, "node_modules", "__pycache__"},
			DebounceMS: DefaultDebounceMS,
		},
	}
}

// Load loads configuration from a file. Missing values are filled from
// Default and environment variables override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// rate_limit.enabled defaults to true; toml leaves it untouched when absent.
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys: %s", strings.Join(keys, ", "))
	}

	applyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults (with environment
// overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		ApplyEnv(cfg)
		return cfg, nil
	}
	return nil, err
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Workspace == "" {
		cfg.Workspace = def.Workspace
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.RateLimit.Agents == nil {
		cfg.RateLimit.Agents = map[string]int{}
	}
	if cfg.Budget.Counter == "" {
		cfg.Budget.Counter = def.Budget.Counter
	}
	if cfg.Budget.Encoding == "" {
		cfg.Budget.Encoding = def.Budget.Encoding
	}
	if cfg.Budget.Agents == nil {
		cfg.Budget.Agents = map[string]int{}
	}
	if cfg.Ledger.StatusFile == "" {
		cfg.Ledger.StatusFile = def.Ledger.StatusFile
	}
	if cfg.Ledger.ChangesFile == "" {
		cfg.Ledger.ChangesFile = def.Ledger.ChangesFile
	}
	if cfg.Ledger.MaxPatches <= 0 {
		cfg.Ledger.MaxPatches = def.Ledger.MaxPatches
	}
	if cfg.Ledger.OutputLines <= 0 {
		cfg.Ledger.OutputLines = def.Ledger.OutputLines
	}
	if cfg.Runner.TimeoutSeconds <= 0 {
		cfg.Runner.TimeoutSeconds = def.Runner.TimeoutSeconds
	}
	if len(cfg.Watch.Paths) == 0 {
		cfg.Watch.Paths = def.Watch.Paths
	}
	if cfg.Watch.DebounceMS <= 0 {
		cfg.Watch.DebounceMS = def.Watch.DebounceMS
	}
}

// ApplyEnv overlays CREWGATE_* environment variables onto cfg.
// Only non-empty, well-formed values override.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Workspace, "WORKSPACE")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.GlobalLimit, "GLOBAL_TOKEN_LIMIT")
	setString(&cfg.Budget.Counter, "TOKEN_COUNTER")
	setInt(&cfg.Runner.TimeoutSeconds, "COMMAND_TIMEOUT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

// CreateDefault creates a default config file
func CreateDefault() (string, error) {
	path := DefaultPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Print(Default(), f); err != nil {
		return "", err
	}

	return path, nil
}

// Print writes config to a writer in TOML format
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# crewgate configuration")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "# Directory for the build status and change log mirror documents")
	fmt.Fprintf(w, "workspace = %q\n", cfg.Workspace)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[logging]")
	fmt.Fprintln(w, "# debug, info, warn or error; format is text or json")
	fmt.Fprintf(w, "level = %q\n", cfg.Logging.Level)
	fmt.Fprintf(w, "format = %q\n", cfg.Logging.Format)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[rate_limit]")
	fmt.Fprintln(w, "# Tokens an agent may consume in any 60 second window")
	fmt.Fprintf(w, "enabled = %t\n", cfg.RateLimit.Enabled)
	fmt.Fprintf(w, "global_limit = %d\n", cfg.RateLimit.GlobalLimit)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "[rate_limit.agents]\n# Per-agent overrides (%s)\n", unlimitedAgentLimitNote)
	writeIntMap(w, cfg.RateLimit.Agents, "# reviewer = 50000")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[budget]")
	fmt.Fprintln(w, "# Cumulative token ceiling per agent before it is summarized and replaced")
	fmt.Fprintf(w, "default_max_tokens = %d\n", cfg.Budget.DefaultMaxTokens)
	fmt.Fprintln(w, "# approx (length/4) or tiktoken (exact, offline BPE tables)")
	fmt.Fprintf(w, "counter = %q\n", cfg.Budget.Counter)
	fmt.Fprintf(w, "encoding = %q\n", cfg.Budget.Encoding)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[budget.agents]")
	writeIntMap(w, cfg.Budget.Agents, "# coder = 400000")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[ledger]")
	fmt.Fprintf(w, "status_file = %q\n", cfg.Ledger.StatusFile)
	fmt.Fprintf(w, "changes_file = %q\n", cfg.Ledger.ChangesFile)
	fmt.Fprintf(w, "max_patches = %d\n", cfg.Ledger.MaxPatches)
	fmt.Fprintf(w, "output_lines = %d\n", cfg.Ledger.OutputLines)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[runner]")
	fmt.Fprintln(w, "# Wall-clock limit for build/test commands")
	fmt.Fprintf(w, "timeout_seconds = %d\n", cfg.Runner.TimeoutSeconds)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[watch]")
	fmt.Fprintf(w, "paths = %s\n", quoteList(cfg.Watch.Paths))
	fmt.Fprintf(w, "ignore = %s\n", quoteList(cfg.Watch.Ignore))
	fmt.Fprintf(w, "debounce_ms = %d\n", cfg.Watch.DebounceMS)

	return nil
}

func writeIntMap(w io.Writer, m map[string]int, example string) {
	if len(m) == 0 {
		fmt.Fprintln(w, example)
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%q = %d\n", k, m[k])
	}
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
