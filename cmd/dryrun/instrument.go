// instrument.go implements the 'dryrun instrument' command.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kolkov/dryrun/dryrun"
	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/ir/jir"
	"github.com/kolkov/dryrun/internal/pipeline"
)

// errNoInputs is returned when a command is given no jir files.
var errNoInputs = errors.New("no input files")

// report is the YAML document written by --report.
type report struct {
	Version string         `yaml:"version"`
	Inputs  []string       `yaml:"inputs"`
	Stats   pipeline.Stats `yaml:"stats"`
	Points  []string       `yaml:"divergence_points,omitempty"`
	Errors  []string       `yaml:"errors,omitempty"`
}

// instrumentCommand implements 'dryrun instrument'.
//
// Every input is loaded into one program so that calls across files
// resolve. Each input's classes are written to DIR under the input's base
// name; a .zst input is written compressed.
//
// Example:
//
//	dryrun instrument --config dryrun.yaml --out build/ classes/*.jir
//	dryrun instrument --report report.yaml app.jir.zst
func instrumentCommand() *cli.Command {
	return &cli.Command{
		Name:      "instrument",
		Aliases:   []string{"i"},
		Usage:     "Rewrite jir classes for dry-run execution",
		ArgsUsage: "INPUT...",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory",
				Value:   "build",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write statistics and divergence points to `FILE` as YAML",
			},
			&cli.BoolFlag{
				Name:  "keep-going",
				Usage: "Write output even when some classes failed",
			},
		},
		Action: instrumentAction,
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Load configuration from `FILE` (YAML or .properties)",
		EnvVars: []string{"DRYRUN_CONFIG"},
	}
}

// loadConfig reads --config, then the DRYRUN_ environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(config.WithConfigFile(c.String("config")), config.WithEnvPrefix(config.DefaultEnvPrefix))
}

// loadProgram reads inputs into a fresh program with the library model
// declared.
func loadProgram(inputs []string) (*ir.Program, map[string][]*ir.Class, error) {
	if len(inputs) == 0 {
		return nil, nil, errNoInputs
	}
	p := ir.NewProgram()
	abi.DeclareLibrary(p)
	byFile, err := jir.LoadProgram(p, inputs...)
	if err != nil {
		return nil, nil, err
	}
	return p, byFile, nil
}

func instrumentAction(c *cli.Context) error {
	log := logger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	inputs := c.Args().Slice()
	p, byFile, err := loadProgram(inputs)
	if err != nil {
		return err
	}

	res, err := pipeline.New(cfg, pipeline.WithLogger(log)).Run(p)
	if err != nil {
		return err
	}
	for _, e := range res.Errors {
		log.WithError(e).Error("instrumentation failed")
	}
	if len(res.Errors) > 0 && !c.Bool("keep-going") {
		return fmt.Errorf("instrumentation reported %d errors; rerun with --keep-going to write the rest", len(res.Errors))
	}

	out := c.String("out")
	if err := writeOutputs(out, byFile, log); err != nil {
		return err
	}
	if path := c.String("report"); path != "" {
		if err := writeReport(path, inputs, res); err != nil {
			return err
		}
	}
	printSummary(c, res, out)
	return nil
}

// writeOutputs writes each input's classes to dir in parallel.
func writeOutputs(dir string, byFile map[string][]*ir.Class, log logrus.FieldLogger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	seen := make(map[string]string, len(byFile))
	for in := range byFile {
		name := filepath.Base(in)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("inputs %s and %s both write %s", prev, in, name)
		}
		seen[name] = in
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for in, classes := range byFile {
		dst := filepath.Join(dir, filepath.Base(in))
		g.Go(func() error {
			if err := jir.WriteFile(dst, classes); err != nil {
				return fmt.Errorf("write %s: %w", dst, err)
			}
			log.WithFields(logrus.Fields{"file": dst, "classes": len(classes)}).Debug("wrote")
			return nil
		})
	}
	return g.Wait()
}

func writeReport(path string, inputs []string, res *pipeline.Result) error {
	r := report{
		Version: dryrun.Version,
		Inputs:  inputs,
		Stats:   res.Stats,
	}
	for _, pt := range res.Points {
		r.Points = append(r.Points, pt.String())
	}
	for _, e := range res.Errors {
		r.Errors = append(r.Errors, e.Error())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(&r); err != nil {
		f.Close()
		return fmt.Errorf("encode report: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(c *cli.Context, res *pipeline.Result, out string) {
	if c.Bool("quiet") {
		return
	}
	au := colors(c)
	st := res.Stats
	w := c.App.Writer
	fmt.Fprintf(w, "%s %d classes, %d methods -> %s\n", au.BrightGreen("instrumented"), st.Classes, st.Methods, out)
	fmt.Fprintf(w, "  - %d variants, %d divergence points, %d shadowed fields\n", st.Variants, st.DivergencePoints, st.ShadowFields)
	fmt.Fprintf(w, "  - %d wrapped hand-offs, %d trace prologues\n", st.WrappedSites, st.TracePrologues)
	if n := st.TotalSkipped(); n > 0 {
		fmt.Fprintf(w, "  - %s\n", au.Yellow(fmt.Sprintf("%d skipped", n)))
	}
	printPoints(w, au, res.Points)
}
