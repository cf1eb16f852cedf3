// Package config loads, validates, and watches the vellum configuration
// file: TOML at xdg.ConfigHome/vellum/vellum.toml, with a handful of
// environment overrides for paths and timeouts. Layout and rule sections
// can be re-applied at runtime; the workspace set cannot.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/vellum-wm/vellum/internal/engine"
	"github.com/vellum-wm/vellum/internal/geo"
	"github.com/vellum-wm/vellum/internal/tiling"
)

// Layout holds the tiling geometry knobs.
type Layout struct {
	GapTop    float64 `toml:"gap_top"`
	GapBottom float64 `toml:"gap_bottom"`
	GapLeft   float64 `toml:"gap_left"`
	GapRight  float64 `toml:"gap_right"`

	// ExternalBarTop and ExternalBarBottom reserve room for bars the OS
	// does not subtract from the visible frame (sketchybar and friends).
	ExternalBarTop    float64 `toml:"external_bar_top"`
	ExternalBarBottom float64 `toml:"external_bar_bottom"`

	// ScreenMargin is how many points of an off-screen column stay visible.
	ScreenMargin float64 `toml:"screen_margin"`

	StickyPairs     bool `toml:"sticky_pairs"`
	RightAnchorLast bool `toml:"right_anchor_last"`

	// AnimationMS must cover the window-move animation; ui watchers stay
	// quiet for this long after every programmatic move.
	AnimationMS int `toml:"animation_ms"`
}

// Workspaces names the virtual workspaces.
type Workspaces struct {
	// Names lists the tiling workspaces; the first is current at startup.
	Names []string `toml:"names"`
	// Scratch optionally names a floating overlay workspace. Empty
	// disables it.
	Scratch string `toml:"scratch,omitempty"`
	// ToggleBack makes switching to the current workspace (or jumping to
	// the focused target) bounce back to the previous spot.
	ToggleBack bool `toml:"toggle_back"`
}

// TitleRule routes windows whose title matches Pattern to Workspace.
// Title rules run before app rules.
type TitleRule struct {
	Pattern   string `toml:"pattern"`
	Workspace string `toml:"workspace"`
}

// Rules is the window routing table.
type Rules struct {
	// Apps maps an application name to a workspace.
	Apps   map[string]string `toml:"apps,omitempty"`
	Titles []TitleRule       `toml:"titles,omitempty"`
}

// Jump is one jump-key target: per category and workspace, the app (and
// optionally title pattern) to focus, and the command that brings it up
// when no window exists yet.
type Jump struct {
	App    string   `toml:"app"`
	Title  string   `toml:"title,omitempty"`
	Launch []string `toml:"launch,omitempty"`
}

// Config is the whole configuration file.
type Config struct {
	Layout     Layout                     `toml:"layout"`
	Workspaces Workspaces                 `toml:"workspaces"`
	Rules      Rules                      `toml:"rules"`
	Jump       map[string]map[string]Jump `toml:"jump,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Layout: Layout{
			GapTop:       8,
			GapBottom:    8,
			GapLeft:      8,
			GapRight:     8,
			ScreenMargin: 1,
			StickyPairs:  true,
			AnimationMS:  200,
		},
		Workspaces: Workspaces{
			Names:      []string{"main", "browse", "chat"},
			Scratch:    "scratch",
			ToggleBack: true,
		},
	}
}

// Path returns the config file location: $VELLUM_CONFIG when set, otherwise
// vellum/vellum.toml under the XDG config home. Parent directories are
// created as needed.
func Path() (string, error) {
	if p := os.Getenv("VELLUM_CONFIG"); p != "" {
		return p, nil
	}
	return xdg.ConfigFile("vellum/vellum.toml")
}

// Load reads the config from its default location, writing the defaults
// there first when the file does not exist yet.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the file at path. Keys absent from the file
// keep their defaults. A missing file is created with the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if werr := Write(path, cfg); werr != nil {
			return nil, fmt.Errorf("write default config: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Write marshals cfg to path with a short header, creating parent
// directories.
func Write(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# vellum configuration\n")
	sb.WriteString("# Layout and rule changes apply live; workspace name changes need a restart.\n\n")
	sb.Write(data)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

// Validate checks the parts that would make the engine misbehave. Rules
// that reference unknown workspaces are allowed; the engine skips them.
func (c *Config) Validate() error {
	if len(c.Workspaces.Names) == 0 {
		return errors.New("workspaces.names must list at least one workspace")
	}
	seen := make(map[string]bool, len(c.Workspaces.Names))
	for _, n := range c.Workspaces.Names {
		if n == "" {
			return errors.New("workspaces.names contains an empty name")
		}
		if seen[n] {
			return fmt.Errorf("workspace %q listed twice", n)
		}
		seen[n] = true
	}

	for _, g := range []struct {
		name string
		v    float64
	}{
		{"gap_top", c.Layout.GapTop},
		{"gap_bottom", c.Layout.GapBottom},
		{"gap_left", c.Layout.GapLeft},
		{"gap_right", c.Layout.GapRight},
		{"external_bar_top", c.Layout.ExternalBarTop},
		{"external_bar_bottom", c.Layout.ExternalBarBottom},
		{"screen_margin", c.Layout.ScreenMargin},
	} {
		if g.v < 0 {
			return fmt.Errorf("layout.%s must not be negative", g.name)
		}
	}
	if c.Layout.AnimationMS < 0 {
		return errors.New("layout.animation_ms must not be negative")
	}

	for _, tr := range c.Rules.Titles {
		if _, err := regexp.Compile(tr.Pattern); err != nil {
			return fmt.Errorf("rules.titles pattern %q: %w", tr.Pattern, err)
		}
	}
	for cat, byWS := range c.Jump {
		for ws, j := range byWS {
			if j.App == "" {
				return fmt.Errorf("jump.%s.%s needs an app", cat, ws)
			}
			if j.Title != "" {
				if _, err := regexp.Compile(j.Title); err != nil {
					return fmt.Errorf("jump.%s.%s title %q: %w", cat, ws, j.Title, err)
				}
			}
		}
	}
	return nil
}

// Policy converts the layout section.
func (c *Config) Policy() tiling.Policy {
	return tiling.Policy{
		Gaps: geo.Insets{
			Top:    c.Layout.GapTop,
			Bottom: c.Layout.GapBottom,
			Left:   c.Layout.GapLeft,
			Right:  c.Layout.GapRight,
		},
		ExternalBar: geo.Insets{
			Top:    c.Layout.ExternalBarTop,
			Bottom: c.Layout.ExternalBarBottom,
		},
		ScreenMargin:    c.Layout.ScreenMargin,
		StickyPairs:     c.Layout.StickyPairs,
		RightAnchorLast: c.Layout.RightAnchorLast,
	}
}

// EngineOptions converts the whole config into engine options. Timing
// fields not exposed in the file keep the engine defaults.
func (c *Config) EngineOptions() engine.Options {
	rules := engine.Rules{
		Workspaces: slices.Clone(c.Workspaces.Names),
		Scratch:    c.Workspaces.Scratch,
		AppRules:   maps.Clone(c.Rules.Apps),
		ToggleBack: c.Workspaces.ToggleBack,
	}
	for _, tr := range c.Rules.Titles {
		rules.TitleRules = append(rules.TitleRules, engine.TitleRule{
			Pattern:   tr.Pattern,
			Workspace: tr.Workspace,
		})
	}
	if len(c.Jump) > 0 {
		rules.JumpTargets = make(map[string]map[string]engine.JumpTarget, len(c.Jump))
		for cat, byWS := range c.Jump {
			targets := make(map[string]engine.JumpTarget, len(byWS))
			for ws, j := range byWS {
				targets[ws] = engine.JumpTarget{
					App:    j.App,
					Title:  j.Title,
					Launch: slices.Clone(j.Launch),
				}
			}
			rules.JumpTargets[cat] = targets
		}
	}

	return engine.Options{
		Policy:            c.Policy(),
		Rules:             rules,
		AnimationDuration: time.Duration(c.Layout.AnimationMS) * time.Millisecond,
	}
}

// Env holds the environment overrides. All variables are optional.
type Env struct {
	// Socket overrides the control socket path.
	Socket string `envconfig:"SOCKET"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// AXTimeoutMS bounds one accessibility batch.
	AXTimeoutMS int `envconfig:"AX_TIMEOUT_MS" default:"15000"`
}

// LoadEnv reads the VELLUM_* environment overrides.
func LoadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("vellum", &e); err != nil {
		return e, fmt.Errorf("environment: %w", err)
	}
	return e, nil
}

// AXTimeout returns the batch timeout as a duration.
func (e Env) AXTimeout() time.Duration {
	return time.Duration(e.AXTimeoutMS) * time.Millisecond
}

// SocketPath resolves the control socket location: the env override when
// set, otherwise vellum/vellum.sock under the XDG runtime directory.
func (e Env) SocketPath() (string, error) {
	if e.Socket != "" {
		return e.Socket, nil
	}
	return xdg.RuntimeFile("vellum/vellum.sock")
}

// PIDPath is the daemon pid file, next to the socket.
func PIDPath() (string, error) {
	return xdg.RuntimeFile("vellum/vellum.pid")
}
