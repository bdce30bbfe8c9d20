package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/index"
	"github.com/starford/bonsai/internal/mcpserver"
)

// ErrLintFailed is returned by Lint when an index document has errors.
var ErrLintFailed = errors.New("lint failed")

// ServeMCP loads the vault and serves the MCP tools over stdio. Logs go to
// stderr so they do not corrupt the protocol stream.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	ws, closeWS, err := openWorkspace(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer closeWS()

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(ws).ServeStdio()
}

// Lint checks every index document and prints the report as JSON.
func Lint(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	ws, closeWS, err := openWorkspace(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer closeWS()

	rep := ws.Lint(ctx)
	if err := printJSON(app, rep); err != nil {
		return err
	}
	if !rep.OK() {
		return fmt.Errorf("%w: %d errors", ErrLintFailed, len(rep.Errors))
	}
	return nil
}

// PrintTree prints the semantic tree labelled by field.
func PrintTree(ctx context.Context, field string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	ws, closeWS, err := openWorkspace(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer closeWS()

	if t, st := ws.Tree().Tree(); t.Root == "" {
		if _, buildErr := ws.Tree().LastReport(); buildErr != nil {
			return fmt.Errorf("tree is %s: %w", st, buildErr)
		}
		return fmt.Errorf("tree is %s", st)
	}
	_, err = fmt.Fprint(app.out, ws.Graph().PrintTree(graph.Field(field)))
	return err
}

// Dump prints the debug dump of the workspace. With cached set it prints the
// snapshot stored in the SQLite cache instead, without reading the vault.
func Dump(ctx context.Context, cached bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	if cached {
		if app.config.SQLite.Path == "" {
			return errors.New("dump: sqlite cache is disabled")
		}
		db, err := index.Open(app.config.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		defer db.Close()
		snap, err := db.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("dump: %w", err)
		}
		if snap == nil {
			logger.Warn("dump: cache is empty", slog.String("sqlite_path", app.config.SQLite.Path))
			return nil
		}
		return printJSON(app, snap)
	}

	ws, closeWS, err := openWorkspace(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer closeWS()
	return printJSON(app, ws.Dump())
}

func printJSON(app *application, v any) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
