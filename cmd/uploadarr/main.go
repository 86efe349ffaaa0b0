package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/amaumene/uploadarr/internal/app"
	"github.com/amaumene/uploadarr/internal/config"
	"github.com/amaumene/uploadarr/internal/trackers"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	cliApp := &cli.App{
		Name:      "uploadarr",
		Usage:     "prepare and upload releases to private trackers",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "trackers",
				Aliases: []string{"t"},
				Usage:   "tracker names or abbreviations to upload to",
			},
			&cli.BoolFlag{
				Name:  "auto",
				Usage: "answer every question from config and metadata",
			},
			&cli.BoolFlag{
				Name:  "confirm",
				Usage: "ask before each submission even with --auto",
			},
			&cli.BoolFlag{
				Name:  "fast-upload",
				Usage: "defer submissions until every item is prepared",
			},
			&cli.BoolFlag{
				Name:  "skip-upload",
				Usage: "prepare torrents and artifacts without submitting",
			},
			&cli.BoolFlag{
				Name:  "no-snapshots",
				Usage: "skip snapshot generation",
			},
			&cli.StringFlag{
				Name:  "note",
				Usage: "message included in the release description",
			},
			&cli.BoolFlag{
				Name:  "list-trackers",
				Usage: "print the supported trackers and exit",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.WithError(err).Fatal("Run failed")
	}
}

func run(c *cli.Context) error {
	if c.Bool("list-trackers") {
		for _, name := range trackers.Names() {
			fmt.Println(name)
		}
		return nil
	}

	if c.NArg() == 0 {
		return cli.Exit("no media paths given", 2)
	}
	if len(c.StringSlice("trackers")) == 0 {
		return cli.Exit("no trackers given, see --list-trackers", 2)
	}

	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}

	a, err := app.New(afero.NewOsFs(), paths, app.Options{
		Trackers:    c.StringSlice("trackers"),
		Paths:       c.Args().Slice(),
		Auto:        c.Bool("auto"),
		Confirm:     c.Bool("confirm"),
		FastUpload:  c.Bool("fast-upload"),
		SkipUpload:  c.Bool("skip-upload"),
		NoSnapshots: c.Bool("no-snapshots"),
		Note:        c.String("note"),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
