// submodule cmd contains command and flag definitions
package main

import "github.com/urfave/cli/v3"

// syncFlags defines the root command's flags.
func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "from",
			Usage: "Range start date (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "to",
			Usage: "Range end date (YYYY-MM-DD)",
		},
		&cli.IntFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "Restrict the pass to one ABCP user id",
		},
		&cli.BoolFlag{
			Name:  "only-store",
			Usage: "Fetch garage records into the local cache without touching the CRM",
		},
		&cli.BoolFlag{
			Name:  "only-sync",
			Usage: "Sync cached records to the CRM without fetching from the source",
		},
		&cli.IntFlag{
			Name:  "loop-every",
			Usage: "Run continuously, one pass every N minutes (0 runs once)",
		},
	}
}
