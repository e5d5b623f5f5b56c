// Command darkpoolctl drives the prediction client from a terminal: commit,
// reveal and claim against a market, inspect markets and prices, and manage
// the local wallet key and commitments.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/alanyoungcy/darkpool/internal/config"
)

var version = "zero"

// metadata is shared by every command through c.App.Metadata["config"].
type metadata struct {
	cfg     *config.Config
	logger  *slog.Logger
	verbose bool
	w       io.Writer
	e       io.Writer
}

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(w, e io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "darkpoolctl"
	app.Usage = "commit-reveal prediction market client"
	app.Version = version
	app.Writer = w
	app.ErrWriter = e

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "config.toml",
			Usage: "configuration `FILE`",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "verbose logging to stderr",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "markets",
			Usage:     "list the watched markets",
			ArgsUsage: " ",
			Action:    runMarkets,
		},
		{
			Name:      "market",
			Usage:     "show one market",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "market, m",
					Usage: "*market `ID`",
				},
			},
			Action: runMarket,
		},
		{
			Name:      "commit",
			Usage:     "commit a hidden prediction",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "market, m",
					Usage: "*market `ID`",
				},
				cli.StringFlag{
					Name:  "side, s",
					Value: "",
					Usage: "*predicted `SIDE` (yes or no)",
				},
				cli.StringFlag{
					Name:  "amount, a",
					Value: "",
					Usage: "*stake in `APT`",
				},
			},
			Action: runCommit,
		},
		{
			Name:      "reveal",
			Usage:     "reveal the stored commitment for a market",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "market, m",
					Usage: "*market `ID`",
				},
			},
			Action: runReveal,
		},
		{
			Name:      "claim",
			Usage:     "claim winnings from a resolved market",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "market, m",
					Usage: "*market `ID`",
				},
			},
			Action: runClaim,
		},
		{
			Name:      "create",
			Usage:     "create a new market",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "question, q",
					Value: "",
					Usage: "*market `QUESTION`",
				},
				cli.Uint64Flag{
					Name:  "commit-hours",
					Value: 24,
					Usage: "commit window in `HOURS`",
				},
				cli.Uint64Flag{
					Name:  "reveal-hours",
					Value: 24,
					Usage: "reveal window in `HOURS`",
				},
			},
			Action: runCreate,
		},
		{
			Name:      "price",
			Usage:     "show the latest oracle price",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "symbol, s",
					Value: "BTC/USD",
					Usage: "price feed `SYMBOL`",
				},
			},
			Action: runPrice,
		},
		{
			Name:      "commitments",
			Usage:     "list locally stored commitments",
			ArgsUsage: " ",
			Action:    runCommitments,
		},
		{
			Name:      "clear",
			Usage:     "delete every locally stored commitment",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "yes, y",
					Usage: "confirm deletion",
				},
			},
			Action: runClear,
		},
		{
			Name:      "archives",
			Usage:     "list archived history objects, or decode one",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "month",
					Value: "",
					Usage: "only list archives for `YYYY-MM`",
				},
				cli.StringFlag{
					Name:  "show",
					Value: "",
					Usage: "print the entries stored at `PATH`",
				},
			},
			Action: runArchives,
		},
		{
			Name:      "keygen",
			Usage:     "generate a wallet key and write it encrypted",
			ArgsUsage: "\n   (* = required)",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Value: "",
					Usage: "*key `FILE` to write",
				},
				cli.StringFlag{
					Name:   "password, p",
					Value:  "",
					Usage:  "*encryption `PASSWORD`",
					EnvVar: "DARKPOOL_WALLET_KEY_PASSWORD",
				},
			},
			Action: runKeygen,
		},
	}

	app.Before = func(c *cli.Context) error {
		verbose := c.GlobalBool("verbose")
		// keygen needs no configuration.
		if c.Args().First() == "keygen" {
			c.App.Metadata["config"] = &metadata{verbose: verbose, w: c.App.Writer, e: c.App.ErrWriter}
			return nil
		}

		cfg, err := config.Load(c.GlobalString("config"), true)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		c.App.Metadata["config"] = &metadata{
			cfg:     cfg,
			logger:  newLogger(c.App.ErrWriter, verbose),
			verbose: verbose,
			w:       c.App.Writer,
			e:       c.App.ErrWriter,
		}
		return nil
	}

	return app
}

// newLogger keeps the terminal quiet unless verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	lvl := slog.LevelWarn
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
