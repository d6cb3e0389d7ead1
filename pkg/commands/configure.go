package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/maildeck/maildeck/pkg/appcontext"
	"github.com/maildeck/maildeck/pkg/command"
	"github.com/maildeck/maildeck/pkg/config"
)

// ConfigFileName is the configuration file under the workdir.
const ConfigFileName = "maildeck.yaml"

// scheduleConfigSave queues one config write, collapsing bursts of changes.
func scheduleConfigSave(app *appcontext.Context) {
	path := filepath.Join(app.Settings.Workdir, ConfigFileName)
	app.Workers.SubmitUnique(SaveQueue, "config-save", func(ctx context.Context) {
		if err := app.Config.SaveFile(path); err != nil {
			app.Log.Warn("config save failed", "path", path, "error", err)
		}
	})
}

// parseAssignment accepts "var = value", "var=value" and "var value" forms.
func parseAssignment(args []string) (string, string, error) {
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "=") {
		path, value, _ := strings.Cut(joined, "=")
		return strings.TrimSpace(path), strings.TrimSpace(value), nil
	}
	if len(args) >= 2 {
		return args[0], strings.Join(args[1:], " "), nil
	}
	return "", "", command.Usagef("expected <variable> = <value>")
}

func configChanged(ctx context.Context, app *appcontext.Context) {
	if err := app.Cache.Invalidate(ctx, ConfigChangedTag); err != nil {
		app.Log.Warn("cache invalidation failed", "tag", ConfigChangedTag, "error", err)
	}
	scheduleConfigSave(app)
}

func asUsage(err error) error {
	if err == nil {
		return nil
	}
	return &command.UsageError{Message: err.Error()}
}

func configSetCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		ShortCode:      "S",
		Name:           "set",
		APIPath:        "settings/set",
		Synopsis:       "<variable> = <value>",
		APIVersion:     APIVersion,
		Doc:            "Change a configuration variable",
		Order:          command.Order{Group: "Config", Rank: 1},
		ConfigRequired: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			path, value, err := parseAssignment(inv.Args())
			if err != nil {
				return nil, err
			}
			if err := app.Config.Set(path, value); err != nil {
				return nil, asUsage(err)
			}
			configChanged(ctx, app)
			canonical, _ := app.Config.GetString(path)
			if rule, ok := app.Config.Rule(path); ok && rule.Class == config.ClassSecret {
				canonical = "(SUPPRESSED)"
			}
			return &command.Outcome{
				Message: fmt.Sprintf("Set %s = %s", path, canonical),
				Payload: command.DataPayload(map[string]any{path: canonical}),
			}, nil
		},
	}
}

func configAddCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:           "append",
		APIPath:        "settings/add",
		Synopsis:       "<variable> <value>",
		APIVersion:     APIVersion,
		Doc:            "Append a value to a list variable",
		Order:          command.Order{Group: "Config", Rank: 2},
		ConfigRequired: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			args := inv.Args()
			if len(args) < 2 {
				return nil, command.Usagef("expected <variable> <value>")
			}
			path, value := args[0], strings.Join(args[1:], " ")
			if err := app.Config.Append(path, value); err != nil {
				return nil, asUsage(err)
			}
			configChanged(ctx, app)
			canonical, _ := app.Config.GetString(path)
			return &command.Outcome{
				Message: fmt.Sprintf("Added to %s", path),
				Payload: command.DataPayload(map[string]any{path: canonical}),
			}, nil
		},
	}
}

func configUnsetCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:           "unset",
		APIPath:        "settings/unset",
		Synopsis:       "<variable>",
		APIVersion:     APIVersion,
		Doc:            "Reset a configuration variable to its default",
		Order:          command.Order{Group: "Config", Rank: 3},
		ConfigRequired: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			args := inv.Args()
			if len(args) != 1 {
				return nil, command.Usagef("expected <variable>")
			}
			if err := app.Config.Unset(args[0]); err != nil {
				return nil, asUsage(err)
			}
			configChanged(ctx, app)
			canonical, _ := app.Config.GetString(args[0])
			return &command.Outcome{
				Message: fmt.Sprintf("Unset %s (now %s)", args[0], canonical),
				Payload: command.DataPayload(map[string]any{args[0]: canonical}),
			}, nil
		},
	}
}

func configPrintCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		ShortCode:      "P",
		Name:           "print",
		APIPath:        "settings",
		Synopsis:       "[variable ...]",
		APIVersion:     APIVersion,
		Doc:            "Print one or all configuration variables",
		Order:          command.Order{Group: "Config", Rank: 0},
		ConfigRequired: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			paths := inv.Args()
			if len(paths) == 0 {
				paths = app.Config.Paths()
			}
			values := map[string]any{}
			for _, p := range paths {
				v, err := app.Config.GetString(p)
				if err != nil {
					if errors.Is(err, config.ErrUnknownVariable) {
						return nil, command.Usagef("unknown variable: %s", p)
					}
					return nil, err
				}
				if rule, ok := app.Config.Rule(p); ok && rule.Class == config.ClassSecret {
					v = "(SUPPRESSED)"
				}
				values[p] = v
			}
			msg := fmt.Sprintf("%d variables", len(values))
			if len(paths) == 1 {
				msg = fmt.Sprintf("%s = %v", paths[0], values[paths[0]])
			}
			return &command.Outcome{
				Message: msg,
				Payload: command.DataPayload(values),
			}, nil
		},
	}
}
