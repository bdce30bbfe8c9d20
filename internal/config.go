package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bonsai/internal/doctype"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/outline"
	"github.com/starford/bonsai/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig       `yaml:"app"`
	Vault     VaultConfig             `yaml:"vault"`
	Garden    GardenConfig            `yaml:"garden"`
	Lint      LintConfig              `yaml:"lint"`
	DocTypes  map[string]doctype.Type `yaml:"doc_types"`
	Templates TemplatesConfig         `yaml:"templates"`
	SQLite    SQLiteConfig            `yaml:"sqlite"`
	Auth      AuthConfig              `yaml:"auth"`
	Watch     WatchConfig             `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Garden.Validate(); err != nil {
		return err
	}
	if err := c.Lint.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if _, err := doctype.New(c.DocTypeConfig()); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// DocTypeConfig assembles the document type resolver configuration. The
// index type is always declared; a doc_types entry may override how it is
// recognised.
func (c *Config) DocTypeConfig() doctype.Config {
	cfg := doctype.DefaultConfig()
	for name, t := range c.DocTypes {
		cfg.Types[name] = t
	}
	cfg.TemplatePath = c.Templates.Path
	return cfg
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// GardenConfig names the root of the semantic tree.
type GardenConfig struct {
	Root  string `yaml:"root"`
	Title string `yaml:"title"`
}

// Validate validates the garden configuration.
func (c *GardenConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// LintConfig controls how strictly index document outlines are parsed.
type LintConfig struct {
	IndentKind string `yaml:"indent_kind"`
	IndentSize int    `yaml:"indent_size"`
	MkdnBullet bool   `yaml:"mkdn_bullet"`
	WikiLink   bool   `yaml:"wikilink"`
}

// Validate validates the lint configuration.
func (c *LintConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IndentKind, validation.Required,
			validation.In(string(outline.IndentSpace), string(outline.IndentTab))),
		validation.Field(&c.IndentSize, validation.Min(0), validation.Max(8)),
	)
}

// Options converts the section to outline parser options.
func (c *LintConfig) Options() outline.Options {
	return outline.Options{
		IndentKind: outline.IndentKind(c.IndentKind),
		IndentSize: c.IndentSize,
		MkdnBullet: c.MkdnBullet,
		WikiLink:   c.WikiLink,
	}
}

// TemplatesConfig locates template documents.
type TemplatesConfig struct {
	Path string `yaml:"path"`
}

// SQLiteConfig holds SQLite database configuration. An empty path disables
// the snapshot cache.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatchConfig controls the vault file watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	lint := outline.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Garden: GardenConfig{
			Root: workspace.DefaultRoot,
		},
		Lint: LintConfig{
			IndentKind: string(lint.IndentKind),
			IndentSize: lint.IndentSize,
			MkdnBullet: lint.MkdnBullet,
			WikiLink:   lint.WikiLink,
		},
		DocTypes: map[string]doctype.Type{
			graph.TypeIndex: doctype.DefaultConfig().Types[graph.TypeIndex],
		},
		SQLite: SQLiteConfig{
			Path: "./bonsai.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: workspace.DefaultDebounce,
		},
	}
}
