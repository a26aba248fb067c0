// run.go implements the 'dryrun run' command.
package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/kolkov/dryrun/internal/interp"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/runtime/api"
	"github.com/kolkov/dryrun/internal/runtime/metrics"
)

// runCommand implements 'dryrun run'.
//
// It interprets a static method of a loaded program. Arguments given with
// --arg are converted to the method's parameter types, which must be
// primitives or java.lang.String. Tasks the program hands to executors
// and threads are awaited before the command returns.
//
// Example:
//
//	dryrun run --class demo.Main --method main build/*.jir
//	dryrun run --class demo.Main --method handle --dry-run --arg 42 build/app.jir
//	dryrun run --class demo.Main --method main --prop PilotMode=enabled build/*.jir
func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Interpret a static method of a jir program",
		ArgsUsage: "INPUT...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "class",
				Usage:    "Class declaring the entry method",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "method",
				Usage: "Static entry method",
				Value: "main",
			},
			&cli.StringSliceFlag{
				Name:  "arg",
				Usage: "Entry method argument (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "prop",
				Usage: "Set a system property as `KEY=VALUE` (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Enter dry-run mode before calling the entry method",
			},
			&cli.BoolFlag{
				Name:  "chain",
				Usage: "Run inside a fresh divergence chain and report its snapshots",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Print every interpreted method entry to stderr",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Print runtime counters after the run",
			},
			&cli.Int64Flag{
				Name:  "steps",
				Usage: "Abort after this many statements (0 for no limit)",
				Value: interp.DefaultStepLimit,
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	log := logger(c)
	props, err := parseProps(c.StringSlice("prop"))
	if err != nil {
		return err
	}
	p, _, err := loadProgram(c.Args().Slice())
	if err != nil {
		return err
	}
	m, err := entryMethod(p, c.String("class"), c.String("method"), len(c.StringSlice("arg")))
	if err != nil {
		return err
	}
	args, err := convertArgs(m.Params, c.StringSlice("arg"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	rt := api.New(api.WithLogger(log), api.WithMetrics(metrics.New(reg)))
	opts := []interp.Option{
		interp.WithRuntime(rt),
		interp.WithLogger(log),
		interp.WithProperties(props),
		interp.WithStepLimit(c.Int64("steps")),
	}
	if c.Bool("trace") {
		var mu sync.Mutex
		w := c.App.ErrWriter
		opts = append(opts, interp.WithCallHook(func(m *ir.Method) {
			mu.Lock()
			fmt.Fprintf(w, "-> %s\n", m.Signature())
			mu.Unlock()
		}))
	}
	in, err := interp.New(p, opts...)
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		rt.CreateDryRunBaggage()
		defer rt.Detach()
	}
	if c.Bool("chain") {
		chain := rt.BeginChain()
		defer func() {
			n := rt.EndChain(chain)
			fmt.Fprintf(c.App.Writer, "chain %s held %d snapshots\n", chain, n)
		}()
	}

	ret, callErr := in.Call(m.Signature(), nil, args...)
	waitErr := in.Wait()
	if err := errors.Join(callErr, waitErr); err != nil {
		var thr *interp.Throwable
		if errors.As(err, &thr) {
			return fmt.Errorf("uncaught exception: %w", err)
		}
		return err
	}
	if !m.Return.IsVoid() {
		fmt.Fprintln(c.App.Writer, interp.Unwrap(ret))
	}
	if c.Bool("metrics") {
		return printMetrics(c.App.Writer, reg)
	}
	return nil
}

// entryMethod finds the static method name in class. With overloads, the
// one taking nargs parameters is chosen.
func entryMethod(p *ir.Program, class, name string, nargs int) (*ir.Method, error) {
	cls := p.Class(class)
	if cls == nil || cls.Phantom {
		return nil, fmt.Errorf("class %s not found", class)
	}
	var found []*ir.Method
	for _, m := range cls.MethodsByName(name) {
		if m.IsStatic() && m.HasBody() && len(m.Params) == nargs {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s has no static method %s taking %d arguments", class, name, nargs)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%s.%s is ambiguous with %d arguments", class, name, nargs)
	}
}

func convertArgs(params []ir.Type, raw []string) ([]any, error) {
	args := make([]any, len(raw))
	for i, s := range raw {
		v, err := convertArg(params[i], s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func convertArg(t ir.Type, s string) (any, error) {
	switch t {
	case ir.StringType, ir.ObjectType:
		return s, nil
	case ir.Boolean:
		return strconv.ParseBool(s)
	case ir.Byte:
		n, err := strconv.ParseInt(s, 0, 8)
		return int8(n), err
	case ir.Short:
		n, err := strconv.ParseInt(s, 0, 16)
		return int16(n), err
	case ir.Char:
		r := []rune(s)
		if len(r) != 1 || r[0] > 0xFFFF {
			return nil, fmt.Errorf("%q is not a single char", s)
		}
		return uint16(r[0]), nil
	case ir.Int:
		n, err := strconv.ParseInt(s, 0, 32)
		return int32(n), err
	case ir.Long:
		return strconv.ParseInt(s, 0, 64)
	case ir.Float:
		f, err := strconv.ParseFloat(s, 32)
		return float32(f), err
	case ir.Double:
		return strconv.ParseFloat(s, 64)
	}
	return nil, fmt.Errorf("cannot pass %q as %s", s, t)
}

func parseProps(kvs []string) (map[string]string, error) {
	props := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--prop %q: want KEY=VALUE", kv)
		}
		props[k] = v
	}
	return props, nil
}

// printMetrics writes every counter and gauge in reg, sorted by name.
func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += fmt.Sprintf("{%s=%q}", lp.GetName(), lp.GetValue())
			}
			v := m.GetCounter().GetValue() + m.GetGauge().GetValue()
			lines = append(lines, fmt.Sprintf("%s %g", name, v))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
