// Package commands holds the built-in command catalog. Bodies are closures
// over the application context; the catalog is built once at startup and
// handed to the registry.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/maildeck/maildeck/pkg/appcontext"
	"github.com/maildeck/maildeck/pkg/command"
	"github.com/maildeck/maildeck/pkg/config"
	"github.com/maildeck/maildeck/pkg/registry"
	"github.com/maildeck/maildeck/pkg/render"
)

// APIVersion is the catalog's API version, gated by the registry.
const APIVersion = "1.0.0"

// SaveQueue is the worker queue deferred index and config saves land on.
const SaveQueue = "save"

// Catalog builds every built-in command over app. reg is only read by the
// help commands and may still be empty when Catalog returns; register the
// returned definitions into it before first use.
func Catalog(app *appcontext.Context, reg *registry.Registry) []*command.Definition {
	defs := []*command.Definition{
		searchCommand(app),
		rescanCommand(app),
		optimizeCommand(app),
		addMailboxesCommand(app),
		configSetCommand(app),
		configAddCommand(app),
		configUnsetCommand(app),
		configPrintCommand(app),
		loadCommand(app),
		outputCommand(app),
		cachedCommand(app),
		helpCommand(app, reg),
		helpVariablesCommand(app),
		helpSplashCommand(app),
		programStatusCommand(app),
		quitCommand(app),
		abortCommand(app),
	}
	return defs
}

// Register builds the catalog and installs it into reg.
func Register(app *appcontext.Context, reg *registry.Registry) error {
	for _, def := range Catalog(app, reg) {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("register %s: %w", def.CanonicalName(), err)
		}
	}
	return nil
}

func helpCommand(app *appcontext.Context, reg *registry.Registry) *command.Definition {
	return &command.Definition{
		ShortCode:  "h",
		Name:       "help",
		APIPath:    "help",
		Synopsis:   "[command]",
		APIVersion: APIVersion,
		Doc:        "Print help on maildeck or individual commands",
		Order:      command.Order{Group: "Config", Rank: 9},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			if args := inv.Args(); len(args) > 0 {
				def, err := reg.Get(args[0])
				if err != nil {
					return nil, command.Usagef("unknown command: %s", args[0])
				}
				return &command.Outcome{
					Message: def.CanonicalName(),
					Payload: command.DataPayload(map[string]any{
						"name":     def.CanonicalName(),
						"synopsis": def.Synopsis,
						"doc":      def.Doc,
					}),
				}, nil
			}

			groups := map[string][]any{}
			for _, def := range reg.List() {
				if def.Doc == "" {
					continue
				}
				groups[def.Order.Group] = append(groups[def.Order.Group], map[string]any{
					"name":     def.CanonicalName(),
					"short":    def.ShortCode,
					"synopsis": def.Synopsis,
					"doc":      def.Doc,
				})
			}
			return &command.Outcome{
				Message: "Commands",
				Payload: command.DataPayload(map[string]any{"commands": groups}),
			}, nil
		},
	}
}

func helpVariablesCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "help/variables",
		APIPath:    "help/variables",
		APIVersion: APIVersion,
		Doc:        "List the available configuration variables",
		Order:      command.Order{Group: "Config", Rank: 9},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			vars := map[string]any{}
			for _, path := range app.Config.Paths() {
				rule, _ := app.Config.Rule(path)
				value, err := app.Config.GetString(path)
				if err != nil {
					continue
				}
				if rule.Class == config.ClassSecret {
					value = "(SUPPRESSED)"
				}
				vars[path] = map[string]any{"doc": rule.Doc, "value": value}
			}
			return &command.Outcome{
				Message: "Configuration variables",
				Payload: command.DataPayload(map[string]any{"variables": vars}),
			}, nil
		},
	}
}

func helpSplashCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "help/splash",
		APIPath:    "help/splash",
		APIVersion: APIVersion,
		Doc:        "Print the welcome banner",
		Order:      command.Order{Group: "Config", Rank: 9},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			return &command.Outcome{
				Message: "Welcome to maildeck",
				Payload: command.TextPayload(splashText),
			}, nil
		},
	}
}

const splashText = `maildeck - a fast, local mail command deck

Type 'help' for a list of commands, 'quit' to leave.
Mailboxes are added with 'add <path>' and indexed with 'rescan'.
`

func outputCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "output",
		APIPath:    "output",
		Synopsis:   "<format>",
		APIVersion: APIVersion,
		Doc:        "Choose the default rendering format (text, json, html)",
		Order:      command.Order{Group: "Config", Rank: 8},
		LogNothing: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			args := inv.Args()
			if len(args) != 1 {
				return nil, command.Usagef("output needs a format name")
			}
			mode := args[0]
			switch strings.SplitN(mode, "!", 2)[0] {
			case render.ModeText, render.ModeJSON, render.ModeHTML:
			default:
				return nil, command.Usagef("unknown format: %s", mode)
			}
			app.SetDefaultRenderMode(mode)
			inv.SetRenderMode(mode)
			return &command.Outcome{
				Message: fmt.Sprintf("Output format set to %s", mode),
				Payload: command.DataPayload(map[string]any{"format": mode}),
			}, nil
		},
	}
}

func cachedCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "cached",
		APIPath:    "cached",
		Synopsis:   "<cache-id>",
		APIVersion: APIVersion,
		Doc:        "Fetch a previously cached result by its cache id",
		Order:      command.Order{Group: "Internals", Rank: 5},
		LogNothing: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			args := inv.Args()
			if len(args) != 1 {
				return nil, command.Usagef("cached needs a cache id")
			}
			res, err := app.Cache.Get(ctx, args[0])
			if err != nil {
				return nil, command.Usagef("not in cache: %s", args[0])
			}
			res.SetRenderMode(inv.RenderMode())
			return &command.Outcome{Override: res}, nil
		},
	}
}

func programStatusCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "ps",
		APIPath:    "ps",
		APIVersion: APIVersion,
		Doc:        "Display the status of running and recent commands",
		Order:      command.Order{Group: "Internals", Rank: 1},
		LogNothing: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			incomplete, err := app.Events.Incomplete(ctx)
			if err != nil {
				return nil, err
			}
			running := make([]any, 0, len(incomplete))
			for _, ev := range incomplete {
				running = append(running, map[string]any{
					"event_id": ev.EventID,
					"source":   ev.Source,
					"message":  ev.Message,
					"flags":    string(ev.Flags),
				})
			}
			return &command.Outcome{
				Message: fmt.Sprintf("%d commands in flight", len(running)),
				Payload: command.DataPayload(map[string]any{
					"running":         running,
					"user_activities": app.State.LiveUserActivities(),
					"quitting":        app.State.Quitting(),
				}),
			}, nil
		},
	}
}

func quitCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		ShortCode:  "q",
		Name:       "quit",
		APIPath:    "quit",
		APIVersion: APIVersion,
		Doc:        "Exit after saving state",
		Order:      command.Order{Group: "Config", Rank: 11},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			app.State.RequestShutdown()
			return &command.Outcome{Message: "Shutting down..."}, &command.ShutdownSignal{}
		},
	}
}

func abortCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "quit/abort",
		APIPath:    "quit/abort",
		APIVersion: APIVersion,
		Doc:        "Exit immediately, skipping the graceful save path",
		Order:      command.Order{Group: "Config", Rank: 12},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			app.State.RequestShutdown()
			return &command.Outcome{Message: "Aborting."}, &command.ShutdownSignal{Abort: true}
		},
	}
}
