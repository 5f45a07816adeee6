// Package config loads and saves agent-arcade's TOML configuration.
//
// The config file lives at ~/.agent-arcade/config.toml. Built-in agent
// profiles work without any file at all; the file adds custom agents,
// games, and tuning for the readiness monitor.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/agent-arcade/internal/agent"
	"github.com/asheshgoplani/agent-arcade/internal/logging"
)

// ConfigFileName is the TOML config file under the arcade directory.
const ConfigFileName = "config.toml"

// DefaultListenAddr is the web status server bind address.
const DefaultListenAddr = "127.0.0.1:8423"

// Config is the user-facing configuration in TOML format.
type Config struct {
	// DefaultAgent is the agent launched when `play` is run without -agent.
	// Valid values: any built-in or [agents.*] name. Default: "claude".
	DefaultAgent string `toml:"default_agent"`

	// DefaultGame is the game launched when `play` is run without -game.
	// Empty means the game window starts as a plain shell.
	DefaultGame string `toml:"default_game"`

	// Theme sets the picker color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Agents defines custom agent profiles or overrides of built-ins.
	Agents map[string]AgentDef `toml:"agents"`

	// Games defines launchable games for the game window.
	Games map[string]GameDef `toml:"games"`

	// Monitoring tunes the readiness poll loop.
	Monitoring MonitoringSettings `toml:"monitoring"`

	// Notifications controls the ready flash in the game window.
	Notifications NotificationSettings `toml:"notifications"`

	// Web configures the optional status server.
	Web WebSettings `toml:"web"`

	// Logs configures the debug log under ~/.agent-arcade/.
	Logs LogSettings `toml:"logs"`

	// Updates controls release checks against GitHub.
	Updates UpdateSettings `toml:"updates"`

	// Playground configures where `try` keeps its scratch folders.
	Playground PlaygroundSettings `toml:"playground"`
}

// AgentDef defines or overrides an agent profile.
//
// When the section name matches a built-in agent, empty fields inherit the
// built-in values and non-empty fields replace them. ready_patterns replaces
// the whole list when present.
type AgentDef struct {
	// Command is the executable to run in the agent window.
	Command string `toml:"command"`

	// Args are command-line arguments for the agent.
	Args []string `toml:"args"`

	// ReadyPatterns are regexes matched against captured window content,
	// in priority order. Matched with multiline semantics, so ^ and $
	// anchor to individual lines.
	ReadyPatterns []string `toml:"ready_patterns"`

	// Detection selects the readiness strategy: "patterns" (default),
	// "hooks", or "logtail".
	Detection string `toml:"detection"`

	// LogFile is the session log tailed by the "logtail" strategy.
	LogFile string `toml:"log_file"`
}

// GameDef defines a launchable game.
type GameDef struct {
	// Command is the executable to run in the game window.
	Command string `toml:"command"`

	// Args are command-line arguments for the game.
	Args []string `toml:"args"`

	// Description is optional help text shown by `agent-arcade games`.
	Description string `toml:"description"`
}

// MonitoringSettings tunes the readiness poll loop.
// Values are seconds; zero or missing fields fall back to defaults.
type MonitoringSettings struct {
	// CheckInterval is seconds between capture polls (default: 0.5)
	CheckInterval float64 `toml:"check_interval"`

	// InactivityTimeout is seconds of unchanged output before the agent
	// counts as ready (default: 2.0)
	InactivityTimeout float64 `toml:"inactivity_timeout"`

	// BufferLines is how many lines of window content each poll captures
	// (default: 50)
	BufferLines int `toml:"buffer_lines"`
}

// GetCheckInterval returns the poll interval, defaulting to 500ms.
func (m MonitoringSettings) GetCheckInterval() time.Duration {
	if m.CheckInterval <= 0 {
		return 500 * time.Millisecond
	}
	return secondsToDuration(m.CheckInterval)
}

// GetInactivityTimeout returns the quiet period, defaulting to 2s.
func (m MonitoringSettings) GetInactivityTimeout() time.Duration {
	if m.InactivityTimeout <= 0 {
		return 2 * time.Second
	}
	return secondsToDuration(m.InactivityTimeout)
}

// GetBufferLines returns the capture depth, defaulting to 50.
func (m MonitoringSettings) GetBufferLines() int {
	if m.BufferLines <= 0 {
		return 50
	}
	return m.BufferLines
}

// NotificationSettings controls the ready flash.
type NotificationSettings struct {
	// Enabled turns notifications on or off entirely (default: true)
	Enabled *bool `toml:"enabled"`

	// Visual flashes the message into the game window (default: true)
	Visual *bool `toml:"visual"`

	// Message is the flash text (default: "🤖 AI Ready")
	Message string `toml:"message"`

	// FlashDuration is how long the flash stays visible, in seconds
	// (default: 1.5)
	FlashDuration float64 `toml:"flash_duration"`
}

// GetEnabled returns whether notifications are on, defaulting to true.
func (n NotificationSettings) GetEnabled() bool {
	if n.Enabled == nil {
		return true
	}
	return *n.Enabled
}

// GetVisual returns whether the in-window flash is on, defaulting to true.
func (n NotificationSettings) GetVisual() bool {
	if n.Visual == nil {
		return true
	}
	return *n.Visual
}

// GetMessage returns the flash text, defaulting to "🤖 AI Ready".
func (n NotificationSettings) GetMessage() string {
	if n.Message == "" {
		return "🤖 AI Ready"
	}
	return n.Message
}

// GetFlashDuration returns the flash display time, defaulting to 1.5s.
func (n NotificationSettings) GetFlashDuration() time.Duration {
	if n.FlashDuration <= 0 {
		return 1500 * time.Millisecond
	}
	return secondsToDuration(n.FlashDuration)
}

// WebSettings configures the optional status server.
type WebSettings struct {
	// Enabled starts the status server alongside `play` (default: false)
	Enabled bool `toml:"enabled"`

	// ListenAddr is the bind address (default: 127.0.0.1:8423)
	ListenAddr string `toml:"listen_addr"`

	// VAPIDPublicKey and VAPIDPrivateKey sign browser push messages.
	// Generated and persisted automatically when left empty.
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`

	// PushPerMinute caps browser push deliveries (default: 12)
	PushPerMinute int `toml:"push_per_minute"`
}

// GetListenAddr returns the bind address, defaulting to loopback.
func (w WebSettings) GetListenAddr() string {
	if w.ListenAddr == "" {
		return DefaultListenAddr
	}
	return w.ListenAddr
}

// GetPushPerMinute returns the push rate cap, defaulting to 12 per minute.
func (w WebSettings) GetPushPerMinute() int {
	if w.PushPerMinute <= 0 {
		return 12
	}
	return w.PushPerMinute
}

// LogSettings configures the debug log file.
type LogSettings struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `toml:"level"`

	// Format sets the log format: "json" (default) or "text"
	Format string `toml:"format"`

	// MaxSizeMB is the max size in MB before arcade.log rotates (default: 10)
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep (default: 5)
	MaxBackups int `toml:"max_backups"`

	// RetentionDays is days to keep rotated files (default: 10)
	RetentionDays int `toml:"retention_days"`

	// Compress gzips rotated files (default: true)
	Compress *bool `toml:"compress"`

	// AggregateIntervalSecs is the flush interval for batched poll-tick
	// events (default: 30)
	AggregateIntervalSecs int `toml:"aggregate_interval_secs"`
}

// GetCompress returns whether rotated logs are compressed, defaulting to true.
func (l LogSettings) GetCompress() bool {
	if l.Compress == nil {
		return true
	}
	return *l.Compress
}

// LoggingConfig converts the [logs] section into the logging package's
// config, writing under dir when debug is active.
func (l LogSettings) LoggingConfig(dir string, debug bool) logging.Config {
	return logging.Config{
		LogDir:                dir,
		Level:                 l.Level,
		Format:                l.Format,
		MaxSizeMB:             l.MaxSizeMB,
		MaxBackups:            l.MaxBackups,
		MaxAgeDays:            l.RetentionDays,
		Compress:              l.GetCompress(),
		AggregateIntervalSecs: l.AggregateIntervalSecs,
		Debug:                 debug,
	}
}

// UpdateSettings controls release checks against GitHub.
type UpdateSettings struct {
	// CheckEnabled turns the periodic release check on or off (default: true)
	CheckEnabled *bool `toml:"check_enabled"`

	// CheckIntervalHours is how long a check result stays cached (default: 24)
	CheckIntervalHours int `toml:"check_interval_hours"`

	// NotifyInCLI prints a one-line hint after `status` when a newer
	// release is known (default: true)
	NotifyInCLI *bool `toml:"notify_in_cli"`
}

// GetCheckEnabled returns whether release checks run, defaulting to true.
func (u UpdateSettings) GetCheckEnabled() bool {
	if u.CheckEnabled == nil {
		return true
	}
	return *u.CheckEnabled
}

// GetCheckIntervalHours returns the cache freshness window, defaulting
// to 24 hours.
func (u UpdateSettings) GetCheckIntervalHours() int {
	if u.CheckIntervalHours <= 0 {
		return 24
	}
	return u.CheckIntervalHours
}

// GetNotifyInCLI returns whether CLI commands mention a pending update,
// defaulting to true.
func (u UpdateSettings) GetNotifyInCLI() bool {
	if u.NotifyInCLI == nil {
		return true
	}
	return *u.NotifyInCLI
}

// PlaygroundSettings configures the `try` scratch area.
type PlaygroundSettings struct {
	// Dir is the base directory for playground folders
	// (default: ~/arcade-playground)
	Dir string `toml:"dir"`

	// DatePrefix prepends YYYY-MM-DD- to new folder names (default: true)
	DatePrefix *bool `toml:"date_prefix"`
}

// GetDir returns the playground base directory with ~ expanded,
// defaulting to ~/arcade-playground.
func (p PlaygroundSettings) GetDir() (string, error) {
	if p.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "arcade-playground"), nil
	}
	if strings.HasPrefix(p.Dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, p.Dir[2:]), nil
	}
	return p.Dir, nil
}

// GetDatePrefix returns whether new folders get a date prefix,
// defaulting to true.
func (p PlaygroundSettings) GetDatePrefix() bool {
	if p.DatePrefix == nil {
		return true
	}
	return *p.DatePrefix
}

// Validate rejects settings that would break the monitor loop.
// Zero values are fine (defaults apply); explicit negatives are not.
func (c *Config) Validate() error {
	if c.Monitoring.CheckInterval < 0 {
		return fmt.Errorf("monitoring.check_interval must be positive, got %g", c.Monitoring.CheckInterval)
	}
	if c.Monitoring.InactivityTimeout < 0 {
		return fmt.Errorf("monitoring.inactivity_timeout must be positive, got %g", c.Monitoring.InactivityTimeout)
	}
	if c.Monitoring.BufferLines < 0 {
		return fmt.Errorf("monitoring.buffer_lines must be positive, got %d", c.Monitoring.BufferLines)
	}
	if c.Notifications.FlashDuration < 0 {
		return fmt.Errorf("notifications.flash_duration must be positive, got %g", c.Notifications.FlashDuration)
	}
	for name, def := range c.Agents {
		if def.Command == "" {
			if _, ok := agent.FindProfile(agent.Builtins(), name); !ok {
				return fmt.Errorf("agents.%s: command is required for non-built-in agents", name)
			}
		}
		switch strings.ToLower(def.Detection) {
		case "", string(agent.DetectPatterns), string(agent.DetectHooks), string(agent.DetectLogTail):
		default:
			return fmt.Errorf("agents.%s: unknown detection %q", name, def.Detection)
		}
	}
	for name, def := range c.Games {
		if def.Command == "" {
			return fmt.Errorf("games.%s: command is required", name)
		}
	}
	return nil
}

// GetDefaultAgent returns the fallback agent name, defaulting to "claude".
func (c *Config) GetDefaultAgent() string {
	if c.DefaultAgent == "" {
		return "claude"
	}
	return c.DefaultAgent
}

// GetTheme returns the picker theme, defaulting to "dark".
func (c *Config) GetTheme() string {
	switch c.Theme {
	case "dark", "light", "system":
		return c.Theme
	default:
		return "dark"
	}
}

// AgentProfiles returns built-in profiles merged with [agents.*] entries,
// sorted by name. A config entry whose name matches a built-in overrides it
// field by field; unknown names become new profiles.
func (c *Config) AgentProfiles() []agent.Profile {
	merged := make(map[string]agent.Profile)
	for _, p := range agent.Builtins() {
		merged[strings.ToLower(p.Name)] = p
	}
	for name, def := range c.Agents {
		key := strings.ToLower(name)
		base, ok := merged[key]
		if !ok {
			base = agent.Profile{Name: name}
		}
		merged[key] = def.apply(base)
	}

	profiles := make([]agent.Profile, 0, len(merged))
	for _, p := range merged {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles
}

// ResolveAgent finds a profile by name, case-insensitively.
func (c *Config) ResolveAgent(selector string) (agent.Profile, bool) {
	if selector == "" {
		return agent.Profile{}, false
	}
	return agent.FindProfile(c.AgentProfiles(), selector)
}

// ResolveGame finds a [games.*] entry by name, case-insensitively.
func (c *Config) ResolveGame(selector string) (string, GameDef, bool) {
	if selector == "" {
		return "", GameDef{}, false
	}
	for name, def := range c.Games {
		if strings.EqualFold(name, selector) {
			return name, def, true
		}
	}
	return "", GameDef{}, false
}

// GameNames returns the configured game names, sorted.
func (c *Config) GameNames() []string {
	names := make([]string, 0, len(c.Games))
	for name := range c.Games {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// apply overlays non-empty fields of the definition onto a base profile.
func (d AgentDef) apply(base agent.Profile) agent.Profile {
	p := base
	if d.Command != "" {
		p.Command = d.Command
	}
	if d.Args != nil {
		p.Args = d.Args
	}
	if d.ReadyPatterns != nil {
		p.ReadyPatterns = d.ReadyPatterns
	}
	if d.Detection != "" {
		p.Detection = agent.Detection(strings.ToLower(d.Detection))
	}
	if d.LogFile != "" {
		p.LogFile = d.LogFile
	}
	if p.Detection == "" {
		p.Detection = agent.DetectPatterns
	}
	return p
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// Default config (empty maps)
var defaultConfig = Config{
	Agents: make(map[string]AgentDef),
	Games:  make(map[string]GameDef),
}

// Cache for the loaded config (read once per process)
var (
	configCache   *Config
	configCacheMu sync.RWMutex
)

// Dir returns the arcade data directory. AGENT_ARCADE_DEV switches to a
// separate dev directory so experiments never touch real state.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	name := ".agent-arcade"
	if os.Getenv("AGENT_ARCADE_DEV") != "" {
		name = ".agent-arcade-dev"
	}
	return filepath.Join(homeDir, name), nil
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load reads the configuration from config.toml.
// Returns cached config after first load. A missing file yields defaults;
// a broken file yields defaults plus the error so the caller can report it.
func Load() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()

	// Double-check after acquiring write lock
	if configCache != nil {
		return configCache, nil
	}

	configPath, err := Path()
	if err != nil {
		configCache = &defaultConfig
		return configCache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configCache = &defaultConfig
		return configCache, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		// Cache default to prevent repeated parse attempts
		configCache = &defaultConfig
		return configCache, fmt.Errorf("config.toml parse error: %w", err)
	}

	if cfg.Agents == nil {
		cfg.Agents = make(map[string]AgentDef)
	}
	if cfg.Games == nil {
		cfg.Games = make(map[string]GameDef)
	}

	if err := cfg.Validate(); err != nil {
		configCache = &defaultConfig
		return configCache, fmt.Errorf("config.toml: %w", err)
	}

	configCache = &cfg
	return configCache, nil
}

// Reload forces a fresh read of the config file.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache drops the cached config so the next Load reads from disk.
func ClearCache() {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
}

// Save writes the config to config.toml using an atomic write pattern:
// write a temp file, fsync it, then rename over the real file. The cache
// is cleared so the next Load picks up the saved values.
func Save(cfg *Config) error {
	configPath, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# Agent Arcade Configuration\n")
	buf.WriteString("# Edit this file or run `agent-arcade config`\n\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// fsync best effort; the atomic rename still protects against
	// partial writes
	_ = syncFile(tmpPath)

	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// CreateExampleConfig writes a commented example config if none exists.
func CreateExampleConfig() error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	// Don't overwrite existing config
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	exampleConfig := `# Agent Arcade Configuration
# Run an AI agent and a terminal game side by side in one tmux session.
# Everything here is optional; built-in agents work with no config at all.

# Agent launched when ` + "`agent-arcade play`" + ` is run without -agent
# Valid values: "claude", "codex", "aider", "generic", or any [agents.*] name
# default_agent = "claude"

# Game launched when ` + "`agent-arcade play`" + ` is run without -game
# Must match a [games.*] name. Empty means the game window starts as a shell.
# default_game = "nethack"

# Picker color scheme: "dark" (default), "light", or "system"
# theme = "system"

# Readiness monitor tuning
[monitoring]
# Seconds between window content checks (default: 0.5)
check_interval = 0.5
# Seconds of unchanged output before the agent counts as ready (default: 2.0)
inactivity_timeout = 2.0
# Lines of window content captured per check (default: 50)
buffer_lines = 50

# Ready notifications
[notifications]
# Master switch (default: true)
enabled = true
# Flash the message into the game window (default: true)
visual = true
# Flash text (default: "🤖 AI Ready")
message = "🤖 AI Ready"
# Seconds the flash stays visible (default: 1.5)
flash_duration = 1.5

# Status server (off by default)
# Serves /api/status, a websocket event stream, and browser push alerts.
# [web]
# enabled = true
# listen_addr = "127.0.0.1:8423"
# Browser push deliveries per minute (default: 12)
# push_per_minute = 12

# Debug logging (written to ~/.agent-arcade/arcade.log in debug mode)
# [logs]
# level = "info"         # "debug", "info", "warn", "error"
# format = "json"        # "json" or "text"
# max_size_mb = 10
# max_backups = 5
# retention_days = 10
# compress = true

# Release checks
# [updates]
# check_enabled = true
# check_interval_hours = 24
# notify_in_cli = true

# Scratch folders for ` + "`agent-arcade try`" + `
# [playground]
# dir = "~/arcade-playground"
# date_prefix = true

# ============================================================================
# Custom agents
# ============================================================================
# Each agent can have:
#   command        - The executable to run (required for new agents)
#   args           - Command-line arguments (array)
#   ready_patterns - Regexes that mean "waiting for input", in priority order.
#                    Multiline semantics: ^ and $ anchor to individual lines.
#   detection      - "patterns" (default), "hooks", or "logtail"
#   log_file       - Session log for the "logtail" strategy

# Example: add a custom agent
# [agents.my-agent]
# command = "my-agent"
# args = ["--chat"]
# ready_patterns = ["^> $"]

# Example: extend the built-in claude profile with an extra prompt pattern
# (unset fields keep the built-in values)
# [agents.claude]
# ready_patterns = ["What would you like to do\\?", "^> ", "Ready when you are"]

# ============================================================================
# Games
# ============================================================================
# Any terminal program can be a game. The game window runs it full screen
# and receives the ready flash while you play.

# [games.nethack]
# command = "nethack"
# description = "The original dungeon crawl"

# [games.2048]
# command = "2048"
# description = "Slide and merge tiles"

# [games.moon-buggy]
# command = "moon-buggy"
# description = "Jump craters on the moon"
`

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return err
	}

	return os.WriteFile(configPath, []byte(exampleConfig), 0o600)
}
