// locate.go implements the 'dryrun locate' command.
package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/logrusorgru/aurora"
	"github.com/urfave/cli/v2"

	"github.com/kolkov/dryrun/internal/fastforward"
	"github.com/kolkov/dryrun/internal/locator"
)

// locateCommand implements 'dryrun locate'.
//
// It runs only the divergence-point search and prints the chain, root
// first, without changing any file. The configuration must name a worker
// class.
//
// Example:
//
//	dryrun locate --config dryrun.yaml classes/*.jir
func locateCommand() *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Aliases:   []string{"l"},
		Usage:     "Print the divergence points of the configured worker",
		ArgsUsage: "INPUT...",
		Flags:     []cli.Flag{configFlag()},
		Action:    locateAction,
	}
}

func locateAction(c *cli.Context) error {
	log := logger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !cfg.FastForward.Enabled() {
		return errors.New("locate needs fastforward.worker_class in the configuration")
	}
	p, _, err := loadProgram(c.Args().Slice())
	if err != nil {
		return err
	}

	root, err := fastforward.New(p, cfg.FastForward, nil, nil, log).Root()
	if err != nil {
		return err
	}
	res := locator.New(p, locator.NewPredicate(p, cfg.FastForward), log).Locate(root)

	au := colors(c)
	w := c.App.Writer
	fmt.Fprintf(w, "%s %s (%d reachable methods)\n", au.BrightGreen("root"), root.Signature(), len(res.Graph.Methods()))
	if cycles := res.Graph.Cycles(); len(cycles) > 0 {
		fmt.Fprintf(w, "  %s\n", au.Yellow(fmt.Sprintf("%d recursive call cycles", len(cycles))))
	}
	if len(res.Points) == 0 {
		fmt.Fprintln(w, "no divergence points")
		return nil
	}
	printPoints(w, au, res.Points)
	return nil
}

// printPoints lists points root first, marking the deepest one.
func printPoints(w io.Writer, au aurora.Aurora, points []locator.DivergePoint) {
	for i, pt := range points {
		mark := " "
		if i == len(points)-1 {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", au.Magenta(mark), pt)
	}
}
