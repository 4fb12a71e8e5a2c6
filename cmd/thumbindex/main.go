package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/thumbindex/internal"
	"github.com/starford/thumbindex/internal/index"
	"github.com/starford/thumbindex/internal/models"
	"github.com/starford/thumbindex/internal/storage"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	return internal.LoadConfig(cmd.String("config"))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// withApp runs fn against a wired App and closes it afterwards, releasing
// any index lock immediately.
func withApp(cmd *cli.Command, fn func(app *internal.App) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := internal.NewApp(internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, app.Close()) }()
	return fn(app)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("%s: missing %s argument", cmd.Name, name)
	}
	return v, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scan(ctx context.Context, cmd *cli.Command) error {
	dir, err := requireArg(cmd, "DIR")
	if err != nil {
		return err
	}
	return withApp(cmd, func(app *internal.App) error {
		stats, err := index.Sync(ctx, app.Cache, app.Scanner, dir, app.Logger.With(slog.String("comp", "sync")))
		if err != nil {
			return err
		}
		return printJSON(stats)
	})
}

func search(ctx context.Context, cmd *cli.Command) error {
	dir, err := requireArg(cmd, "DIR")
	if err != nil {
		return err
	}
	query, exts := cmd.String("query"), cmd.StringSlice("ext")
	return withApp(cmd, func(app *internal.App) error {
		if !cmd.Bool("stream") {
			res, err := app.Cache.SearchSubfolder(ctx, dir, query, exts)
			if err != nil {
				return err
			}
			return printJSON(res)
		}
		// One JSON document per line so output starts before the query ends.
		enc := json.NewEncoder(os.Stdout)
		for st, err := range app.Cache.StreamSubfolder(ctx, dir, query, exts) {
			if err != nil {
				return err
			}
			if err := enc.Encode(st); err != nil {
				return err
			}
		}
		return nil
	})
}

func extensions(ctx context.Context, cmd *cli.Command) error {
	dir, err := requireArg(cmd, "DIR")
	if err != nil {
		return err
	}
	return withApp(cmd, func(app *internal.App) error {
		set, err := app.Cache.ListExtensions(ctx, dir)
		if err != nil {
			return err
		}
		return printJSON(index.SortedExtensions(set))
	})
}

func stat(ctx context.Context, cmd *cli.Command) error {
	p, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	return withApp(cmd, func(app *internal.App) error {
		st, err := app.Cache.FindAndParseFileStat(ctx, p)
		if err != nil {
			return err
		}
		if st == nil {
			return fmt.Errorf("stat: %s is not indexed", p)
		}
		return printJSON(st)
	})
}

func hash(ctx context.Context, cmd *cli.Command) error {
	p, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	return withApp(cmd, func(app *internal.App) error {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		current, err := app.Cache.ComputeHash(storage.StatFromInfo(p, info))
		if err != nil {
			return err
		}
		stored, err := app.Cache.FindHash(ctx, p)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Path    string `json:"path"`
			Hash    string `json:"hash"`
			Stored  string `json:"stored,omitempty"`
			Changed bool   `json:"changed"`
		}{p, current, stored, stored != current})
	})
}

func write(ctx context.Context, cmd *cli.Command) error {
	p, err := requireArg(cmd, "PATH")
	if err != nil {
		return err
	}
	return withApp(cmd, func(app *internal.App) error {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		st := storage.StatFromInfo(p, info)
		res, err := app.Cache.WriteRow(ctx, p, time.Time{}, st, models.EntryType(cmd.String("type")))
		if err != nil {
			return err
		}
		return printJSON(struct {
			Outcome string `json:"outcome"`
			Hash    string `json:"hash"`
		}{res.Outcome.String(), res.Hash})
	})
}

func main() {
	cmd := &cli.Command{
		Name:   "thumbindex",
		Usage:  "Per-root file metadata index with fingerprinted writes and subfolder search",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Sync configured roots and serve health and metrics",
				Action: serve,
			},
			{
				Name:      "scan",
				Usage:     "Bring the index of DIR up to date with the filesystem",
				ArgsUsage: "DIR",
				Action:    scan,
			},
			{
				Name:      "search",
				Usage:     "List indexed entries below DIR",
				ArgsUsage: "DIR",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Full-text filter on names"},
					&cli.StringSliceFlag{Name: "ext", Aliases: []string{"e"}, Usage: "Extension filter, repeatable"},
					&cli.BoolFlag{Name: "stream", Usage: "Stream every match as JSON lines, without the result limit"},
				},
				Action: search,
			},
			{
				Name:      "extensions",
				Usage:     "List the file extensions indexed below DIR",
				ArgsUsage: "DIR",
				Action:    extensions,
			},
			{
				Name:      "stat",
				Usage:     "Print the stored stat of PATH",
				ArgsUsage: "PATH",
				Action:    stat,
			},
			{
				Name:      "hash",
				Usage:     "Compare the current fingerprint of PATH with the stored one",
				ArgsUsage: "PATH",
				Action:    hash,
			},
			{
				Name:      "write",
				Usage:     "Index the current stat of PATH",
				ArgsUsage: "PATH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Entry type override: file or dir"},
				},
				Action: write,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
