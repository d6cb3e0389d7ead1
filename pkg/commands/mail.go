package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maildeck/maildeck/pkg/appcontext"
	"github.com/maildeck/maildeck/pkg/command"
)

// IndexChangedTag marks cached results that depend on index contents.
const IndexChangedTag = "index-changed"

// ConfigChangedTag marks cached results that depend on configuration.
const ConfigChangedTag = "config-changed"

func searchCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		ShortCode:      "s",
		Name:           "search",
		APIPath:        "search",
		Synopsis:       "<terms ...>",
		APIVersion:     APIVersion,
		Doc:            "Search your mail",
		Order:          command.Order{Group: "Searching", Rank: 0},
		CacheTTL:       15 * time.Minute,
		ConfigRequired: true,
		IsUserActivity: true,
		HTTPMethods:    []string{"GET", "POST"},
		QueryVars:      map[string]string{"q": "search terms", "start": "first result offset"},
		CacheRequirements: func(*command.Result) []string {
			return []string{IndexChangedTag, ConfigChangedTag}
		},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			terms := append([]string{}, inv.Args()...)
			if q := inv.DataValue("q"); q != "" {
				terms = append(terms, q)
			}
			if len(terms) == 0 {
				return nil, command.Usagef("search needs at least one term")
			}
			if app.Index == nil {
				return nil, fmt.Errorf("no search index available")
			}

			ids, err := app.Index.Search(ctx, terms)
			if err != nil {
				return nil, fmt.Errorf("search failed: %w", err)
			}

			limit, cfgErr := app.Config.GetInt("prefs.num_results")
			if cfgErr != nil || limit <= 0 {
				limit = 20
			}
			start := 0
			if s := inv.DataValue("start"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil {
					return nil, command.Usagef("start must be a number, got %q", s)
				}
				if n >= 0 && n <= len(ids) {
					start = n
				}
			}
			page := ids[start:]
			if len(page) > limit {
				page = page[:limit]
			}

			return &command.Outcome{
				Message: fmt.Sprintf("Found %d results", len(ids)),
				Payload: command.DataPayload(map[string]any{
					"thread_ids": toAny(page),
					"start":      start,
					"count":      len(page),
					"total":      len(ids),
					"terms":      toAny(terms),
				}),
			}, nil
		},
	}
}

func rescanCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:           "rescan",
		APIPath:        "rescan",
		Synopsis:       "[full]",
		APIVersion:     APIVersion,
		Doc:            "Scan all mailboxes for new messages",
		Order:          command.Order{Group: "Searching", Rank: 2},
		ConfigRequired: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			if app.Index == nil {
				return nil, fmt.Errorf("no search index available")
			}
			mailboxes, err := app.Config.GetList("sys.mailbox")
			if err != nil {
				return nil, err
			}

			var (
				scanned  int
				messages int
				aborted  bool
			)
			for _, path := range mailboxes {
				// Shutdown beats completeness; a partial rescan is resumable.
				if app.State.Quitting() {
					aborted = true
					break
				}
				count, err := app.Index.ScanMailbox(ctx, path)
				if err != nil {
					app.Log.Warn("mailbox scan failed", "mailbox", path, "error", err)
					continue
				}
				scanned++
				messages += count
			}

			if messages > 0 {
				if err := app.Cache.Invalidate(ctx, IndexChangedTag); err != nil {
					app.Log.Warn("cache invalidation failed", "tag", IndexChangedTag, "error", err)
				}
				scheduleIndexSave(app)
			}

			msg := fmt.Sprintf("Rescanned %d mailboxes, %d new messages", scanned, messages)
			if aborted {
				msg += " (aborted)"
			}
			return &command.Outcome{
				Message: msg,
				Payload: command.DataPayload(map[string]any{
					"mailboxes": scanned,
					"messages":  messages,
					"aborted":   aborted,
				}),
			}, nil
		},
	}
}

// scheduleIndexSave queues one index save, collapsing repeated requests so a
// burst of rescans produces a single write.
func scheduleIndexSave(app *appcontext.Context) {
	app.Workers.SubmitUnique(SaveQueue, "index-save", func(ctx context.Context) {
		if err := app.Index.Save(ctx); err != nil {
			app.Log.Warn("index save failed", "error", err)
		}
	})
}

func optimizeCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:           "optimize",
		APIPath:        "optimize",
		Synopsis:       "[harder]",
		APIVersion:     APIVersion,
		Doc:            "Compact the search index",
		Order:          command.Order{Group: "Searching", Rank: 3},
		ConfigRequired: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			if app.Index == nil {
				return nil, fmt.Errorf("no search index available")
			}
			full := len(inv.Args()) > 0 && inv.Args()[0] == "harder"
			if err := app.Index.Optimize(ctx, full); err != nil {
				return nil, fmt.Errorf("optimize failed: %w", err)
			}
			if err := app.Cache.Invalidate(ctx, IndexChangedTag); err != nil {
				app.Log.Warn("cache invalidation failed", "tag", IndexChangedTag, "error", err)
			}
			scheduleIndexSave(app)
			return &command.Outcome{
				Message: "Optimized the index",
				Payload: command.DataPayload(map[string]any{"full": full}),
			}, nil
		},
	}
}

func addMailboxesCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		ShortCode:      "A",
		Name:           "add",
		APIPath:        "settings/mailbox/add",
		Synopsis:       "<path ...>",
		APIVersion:     APIVersion,
		Doc:            "Add one or more mailboxes to the index set",
		Order:          command.Order{Group: "Config", Rank: 4},
		ConfigRequired: true,
		ChangesContext: true,
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			paths := inv.Args()
			if len(paths) == 0 {
				return nil, command.Usagef("add needs at least one mailbox path")
			}

			existing, err := app.Config.GetList("sys.mailbox")
			if err != nil {
				return nil, err
			}
			known := map[string]bool{}
			for _, m := range existing {
				known[m] = true
			}

			added := 0
			for _, p := range paths {
				clean := filepath.Clean(p)
				if known[clean] {
					continue
				}
				if err := app.Config.Append("sys.mailbox", clean); err != nil {
					return nil, err
				}
				known[clean] = true
				added++
			}

			if added > 0 {
				if err := app.Cache.Invalidate(ctx, ConfigChangedTag); err != nil {
					app.Log.Warn("cache invalidation failed", "tag", ConfigChangedTag, "error", err)
				}
				scheduleConfigSave(app)
			}
			return &command.Outcome{
				Message: fmt.Sprintf("Added %d mailboxes", added),
				Payload: command.DataPayload(map[string]any{"added": added}),
			}, nil
		},
	}
}

func loadCommand(app *appcontext.Context) *command.Definition {
	return &command.Definition{
		Name:       "load",
		APIPath:    "load",
		APIVersion: APIVersion,
		Doc:        "Load the configuration and open the index",
		Order:      command.Order{Group: "Internals", Rank: 2},
		Run: func(ctx context.Context, inv *command.Invocation) (*command.Outcome, error) {
			if err := app.EnsureReady(ctx); err != nil {
				return nil, fmt.Errorf("load failed: %w", err)
			}
			return &command.Outcome{Message: "Loaded"}, nil
		},
	}
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
