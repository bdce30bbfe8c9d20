package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/bonsai/internal/doctype"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/outline"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.Garden.Root != "i.bonsai" {
		t.Errorf("root = %q, want i.bonsai", cfg.Garden.Root)
	}
	if !cfg.Watch.Enabled || cfg.Watch.Debounce <= 0 {
		t.Errorf("watch = %+v", cfg.Watch)
	}
}

func TestLintConfig_InvalidIndentKind(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Lint.IndentKind = "dots"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown indent kind should fail validation")
	}
}

func TestLintConfig_Options(t *testing.T) {
	cfg := LintConfig{IndentKind: "tab", MkdnBullet: false, WikiLink: true}
	opts := cfg.Options()
	if opts.IndentKind != outline.IndentTab || opts.MkdnBullet || !opts.WikiLink {
		t.Errorf("options = %+v", opts)
	}
}

func TestGardenConfig_RootRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Garden.Root = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty garden root should fail validation")
	}
}

func TestDocTypeConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.DocTypes["journal"] = doctype.Type{Prefix: "j.:date"}
	cfg.Templates.Path = "templates"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config with extra type should pass: %v", err)
	}
	dt := cfg.DocTypeConfig()
	if _, ok := dt.Types[graph.TypeIndex]; !ok {
		t.Error("index type must always be declared")
	}
	if _, ok := dt.Types["journal"]; !ok {
		t.Error("configured type missing")
	}
	if dt.TemplatePath != "templates" {
		t.Errorf("template path = %q", dt.TemplatePath)
	}
}

func TestWatchConfig_DebounceBounds(t *testing.T) {
	cfg := WatchConfig{Enabled: true, Debounce: 2 * time.Hour}
	if err := cfg.Validate(); err == nil {
		t.Fatal("debounce above a minute should fail validation")
	}
}
