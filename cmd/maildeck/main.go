// Command maildeck is the interactive console front-end: it reads command
// lines, resolves them against the catalog, executes them through the engine
// and renders results in the selected output format.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/maildeck/maildeck/pkg/appcontext"
	"github.com/maildeck/maildeck/pkg/cache"
	"github.com/maildeck/maildeck/pkg/command"
	"github.com/maildeck/maildeck/pkg/commands"
	"github.com/maildeck/maildeck/pkg/config"
	"github.com/maildeck/maildeck/pkg/engine"
	"github.com/maildeck/maildeck/pkg/eventlog"
	"github.com/maildeck/maildeck/pkg/observability"
	"github.com/maildeck/maildeck/pkg/registry"
	"github.com/maildeck/maildeck/pkg/render"
	"github.com/maildeck/maildeck/pkg/worker"
)

func main() {
	os.Exit(Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split from main for testing.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("maildeck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		workdir = fs.String("workdir", "", "working directory (default $MAILDECK_WORKDIR)")
		output  = fs.String("output", "", "default output format: text, json or html")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	settings := config.Load()
	if *workdir != "" {
		settings.Workdir = *workdir
	}
	if err := os.MkdirAll(settings.Workdir, 0o700); err != nil {
		fmt.Fprintf(stderr, "workdir: %v\n", err)
		return 1
	}

	log := newLogger(settings.LogLevel, stderr)
	app := appcontext.New(settings, log)
	if *output != "" {
		app.SetDefaultRenderMode(*output)
	}

	if err := wireBackends(app, log); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	app.SetPrepare(func(ctx context.Context) error {
		if err := app.Config.LoadFile(filepath.Join(settings.Workdir, commands.ConfigFileName)); err != nil {
			return err
		}
		// The -output flag wins over the configured preference.
		if *output == "" {
			if mode, err := app.Config.GetString("prefs.output_format"); err == nil && mode != "" {
				app.SetDefaultRenderMode(mode)
			}
		}
		return nil
	})

	reg, err := registry.New("^" + commands.APIVersion)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if err := commands.Register(app, reg); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	obs, err := observability.New(context.Background(), nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "observability: %v\n", err)
		return 1
	}
	eng := engine.New(app, obs)

	// Saves are cheap but disk-bound; keep the queue from thrashing.
	app.Workers.Configure(commands.SaveQueue, worker.WithRateLimit(rate.Every(time.Second), 1))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := repl(ctx, app, reg, eng, stdin, stdout, stderr)

	app.Workers.Shutdown()
	_ = obs.Shutdown(context.Background())
	return code
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// wireBackends swaps the in-process cache and event log for shared backends
// when the settings ask for them.
func wireBackends(app *appcontext.Context, log *slog.Logger) error {
	settings := app.Settings
	switch settings.CacheBackend {
	case "", "memory":
	case "redis":
		opts, err := redis.ParseURL(settings.RedisURL)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		app.Cache = cache.NewRedisCache(redis.NewClient(opts))
	default:
		return fmt.Errorf("unknown cache backend %q", settings.CacheBackend)
	}

	switch settings.EventStore {
	case "memory":
	case "", "sqlite":
		db, err := sql.Open("sqlite", filepath.Join(settings.Workdir, "events.db"))
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		store, err := eventlog.NewSQLiteLog(db)
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		app.Events = store
	case "postgres":
		db, err := sql.Open("postgres", settings.DatabaseURL)
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		store, err := eventlog.NewPostgresLog(db)
		if err != nil {
			return fmt.Errorf("event store: %w", err)
		}
		app.Events = store
	default:
		return fmt.Errorf("unknown event store %q", settings.EventStore)
	}

	log.Debug("backends wired",
		"cache", settings.CacheBackend, "events", settings.EventStore)
	return nil
}

func repl(ctx context.Context, app *appcontext.Context, reg *registry.Registry, eng *engine.Engine, stdin io.Reader, stdout, stderr io.Writer) int {
	renderer := app.Renderer
	scanner := bufio.NewScanner(stdin)
	fmt.Fprint(stdout, "maildeck> ")

	for scanner.Scan() {
		if ctx.Err() != nil || app.State.Quitting() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(stdout, "maildeck> ")
			continue
		}
		name, rawArg, _ := strings.Cut(line, " ")

		if code, done := dispatch(ctx, app, reg, eng, renderer, name, rawArg, stdout, stderr); done {
			return code
		}
		fmt.Fprint(stdout, "maildeck> ")
	}
	return 0
}

// dispatch runs one console line. The bool reports whether the loop should
// exit with the returned code.
func dispatch(ctx context.Context, app *appcontext.Context, reg *registry.Registry, eng *engine.Engine, renderer *render.Renderer, name, rawArg string, stdout, stderr io.Writer) (int, bool) {
	resolution, err := reg.Resolve(name)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 0, false
	}

	inv, err := command.New(resolution.Def, rawArg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 0, false
	}
	if len(resolution.PrependArgs) > 0 {
		inv, err = command.NewWithArgs(resolution.Def,
			append(append([]string{}, resolution.PrependArgs...), inv.Args()...), nil)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 0, false
		}
	}

	res, err := eng.Execute(ctx, inv)
	if err != nil {
		var shutdown *command.ShutdownSignal
		var redirect *command.RedirectSignal
		switch {
		case errors.As(err, &shutdown):
			printResult(renderer, res, app.DefaultRenderMode(), stdout, stderr)
			if shutdown.Abort {
				return 1, true
			}
			return 0, true
		case errors.As(err, &redirect):
			fmt.Fprintf(stdout, "-> %s\n", redirect.URL)
		default:
			fmt.Fprintf(stderr, "%v\n", err)
		}
		return 0, false
	}
	printResult(renderer, res, app.DefaultRenderMode(), stdout, stderr)
	return 0, false
}

func printResult(renderer *render.Renderer, res *command.Result, fallbackMode string, stdout, stderr io.Writer) {
	if res == nil {
		return
	}
	mode := res.RenderMode()
	if mode == "" {
		mode = fallbackMode
	}
	b, err := renderer.Render(res, mode)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return
	}
	stdout.Write(b)
}
