// Package main implements the dryrun CLI tool.
//
// The dryrun tool rewrites programs in the jir text format so that every
// method can also execute in dry-run mode: a side-effect-free replay that
// shares the program's code but not its state. It works by:
//
//  1. Loading jir class files into one program
//  2. Generating $instrumentation, $original and $shadow variants
//  3. Locating divergence points and inserting snapshot capture/restore
//  4. Writing the rewritten classes back out
//
// Usage:
//
//	dryrun instrument --config dryrun.yaml --out build/ classes/*.jir
//	dryrun locate --config dryrun.yaml classes/*.jir
//	dryrun run --class demo.Main --method main build/*.jir
//	dryrun version
//
// The run command executes a program in the built-in interpreter against
// the dry-run runtime library, which is how instrumented output is checked
// without a JVM.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/logrusorgru/aurora"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/kolkov/dryrun/dryrun"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// newApp creates the CLI application.
func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "dryrun",
		Usage:     "instrument jir programs for dry-run execution",
		Version:   dryrun.Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Log every pass at debug level",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
			&cli.BoolFlag{
				Name:    "no-color",
				Usage:   "Disable colored output",
				EnvVars: []string{"NO_COLOR"},
			},
		},
		Commands: []*cli.Command{
			instrumentCommand(),
			locateCommand(),
			runCommand(),
			versionCommand(),
		},
		Before: func(c *cli.Context) error {
			c.App.Metadata["log"] = newLogger(c, stderr)
			c.App.Metadata["color"] = aurora.NewAurora(!c.Bool("no-color"))
			return nil
		},
		Metadata:    map[string]interface{}{},
		HideVersion: true,
	}
}

// newLogger returns a logger for the level the global flags select.
func newLogger(c *cli.Context, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
		DisableColors:   c.Bool("no-color"),
	})
	switch {
	case c.Bool("debug"):
		log.SetLevel(logrus.DebugLevel)
	case c.Bool("quiet"):
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func logger(c *cli.Context) *logrus.Logger {
	if l, ok := c.App.Metadata["log"].(*logrus.Logger); ok {
		return l
	}
	return logrus.StandardLogger()
}

func colors(c *cli.Context) aurora.Aurora {
	if a, ok := c.App.Metadata["color"].(aurora.Aurora); ok {
		return a
	}
	return aurora.NewAurora(false)
}

// versionCommand implements 'dryrun version'.
func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			info := dryrun.GetInfo()
			fmt.Fprintf(c.App.Writer, "dryrun %s\n", info.Version)
			fmt.Fprintf(c.App.Writer, "  jir format: %s\n", info.FormatVersion)
			fmt.Fprintf(c.App.Writer, "  snapshots:  %s\n", info.SnapshotPolicy)
			return nil
		},
	}
}
