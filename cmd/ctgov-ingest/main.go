package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/trialfinder/internal/config"
	"github.com/kailas-cloud/trialfinder/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ctgov-ingest:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "ctgov-ingest",
		Usage:   "Load ClinicalTrials.gov studies into trialfinder and manage their embeddings",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Config environment (reads config/<env>.yaml)",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Explicit config file path, overrides --env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: func(*cli.Context) error {
			return config.LoadDotEnv() //nolint:wrapcheck // already names the file
		},
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Fetch studies by condition, upsert them and embed new ones",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "condition",
						Aliases: []string{"c"},
						Usage:   "Condition to ingest, repeatable (defaults to the configured list)",
					},
					&cli.IntFlag{
						Name:  "max-pages",
						Usage: "Maximum pages fetched per condition (0 uses config)",
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Studies per page, at most 1000 (0 uses config)",
					},
					&cli.BoolFlag{
						Name:  "recruiting",
						Usage: "Only fetch recruiting studies",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent upserts (0 uses config)",
					},
					&cli.BoolFlag{
						Name:  "skip-embed",
						Usage: "Store studies without embedding them",
					},
				},
			},
			{
				Name:   "backfill",
				Usage:  "Embed stored studies that have no vector yet",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Only report how many studies need embeddings",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Studies per embedding request (0 uses config)",
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Retry attempts for a failed batch",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Wait before retrying a failed batch",
						Value: defaultRetryDelay,
					},
				},
			},
			{
				Name:   "verify",
				Usage:  "Report embedding coverage of published studies",
				Action: verifyCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Drop and recreate the study search index; stored studies are kept",
				Action: reindexCommand,
			},
		},
	}
}
