// Package pipeline runs the dry-run instrumentation passes over a program.
//
// The passes run in a fixed order, each collecting its points first and
// applying them second:
//
//  1. filter: select the instrumentable classes
//  2. fast-forward: shadow variants, CAPTURE and RESTORE along the worker's
//     divergence chain (only with fastforward.worker_class)
//  3. trace flags: needDryRunTrace$<Class> markers and the ancestor map
//  4. field declarations: f$dryRun / f$dryRun$setByDryRun pairs
//  5. variants: $instrumentation and $original clones plus the entry gate
//  6. redirect: calls reach the sibling of the caller's kind
//  7. field shadowing: instrumented bodies use the f$dryRun copies
//  8. propagate: context hand-off at executor, future and callback sites,
//     and the trace prologue of task entry points
//  9. startpoint: pilot-mode redirect of the configured target
//  10. validate every touched body
//
// Example:
//
//	cfg, err := config.Load(config.WithConfigFile("dryrun.yaml"))
//	if err != nil {
//	    return err
//	}
//	res, err := pipeline.New(cfg, pipeline.WithLogger(log)).Run(prog)
//	if err != nil {
//	    return err // configuration problem, nothing was changed
//	}
//	for _, e := range res.Errors {
//	    log.Warn(e) // per class or method, the rest was instrumented
//	}
//
// Thread Safety: NOT thread-safe. A pipeline mutates the program in place.
package pipeline

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/fastforward"
	"github.com/kolkov/dryrun/internal/filter"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/locator"
	"github.com/kolkov/dryrun/internal/propagate"
	"github.com/kolkov/dryrun/internal/redirect"
	"github.com/kolkov/dryrun/internal/shadow"
	"github.com/kolkov/dryrun/internal/snapshot"
	"github.com/kolkov/dryrun/internal/startpoint"
	"github.com/kolkov/dryrun/internal/variant"
)

// Result is the outcome of one run.
type Result struct {
	Stats Stats

	// Points are the divergence points found by the fast-forward pass.
	Points []locator.DivergePoint

	// Errors holds the per-class and per-method failures. A class that
	// failed while its variants were generated is left uninstrumented; a
	// method whose later rewrite failed keeps its body from before that
	// rewrite. Everything else is complete.
	Errors []error

	// Table records every variant that was generated.
	Table *variant.Table

	// Flags maps classes to their inherited trace flags.
	Flags *propagate.Flags
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the pipeline and its passes.
func WithLogger(log logrus.FieldLogger) Option {
	return func(pl *Pipeline) { pl.log = log }
}

// Pipeline holds the configuration of a run.
type Pipeline struct {
	cfg *config.Config
	log logrus.FieldLogger
}

// New returns a pipeline for cfg. Without WithLogger, messages are
// discarded.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	pl := &Pipeline{cfg: cfg}
	for _, o := range opts {
		o(pl)
	}
	if pl.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		pl.log = l
	}
	return pl
}

// run is the state of one Run call.
type run struct {
	*Pipeline
	prog    *ir.Program
	res     *Result
	classes []*ir.Class
	failed  map[*ir.Class]bool
	gen     *variant.Generator
}

// Run instruments p in place.
//
// Returns:
//   - *Result: statistics, divergence points and per-item errors
//   - error: only for an invalid configuration, in which case p is
//     unchanged
func (pl *Pipeline) Run(p *ir.Program) (*Result, error) {
	if err := pl.cfg.Validate(); err != nil {
		return nil, err
	}
	snap, err := snapshot.New(pl.cfg.Boxing.Table())
	if err != nil {
		return nil, fmt.Errorf("boxing table: %w", err)
	}
	if ff := pl.cfg.FastForward; ff.Enabled() {
		if c := p.Class(ff.WorkerClass); c == nil || c.Phantom {
			return nil, fmt.Errorf("%w: fastforward.worker_class %s is not in the program", config.ErrInvalidConfig, ff.WorkerClass)
		}
	}

	table := variant.NewTable()
	r := &run{
		Pipeline: pl,
		prog:     p,
		res:      &Result{Table: table},
		failed:   make(map[*ir.Class]bool),
		gen:      variant.NewGenerator(p, table, pl.log),
	}
	r.selectClasses()
	r.fastForward(snap)
	r.traceFlags()
	r.declareFields()
	r.variants()
	r.redirect()
	r.shadowFields()
	r.propagate()
	r.startpoint()
	r.validate()

	st := &r.res.Stats
	st.Variants = table.Count(variant.Instrumented) + table.Count(variant.Original) + table.Count(variant.Shadow)
	st.ClassesFailed = len(r.failed)
	pl.log.WithFields(logrus.Fields{
		"classes": st.Classes,
		"methods": st.Methods,
		"changes": st.Total(),
		"skipped": st.TotalSkipped(),
		"errors":  len(r.res.Errors),
	}).Info("instrumentation finished")
	return r.res, nil
}

func (r *run) fail(c *ir.Class, err error) {
	r.failed[c] = true
	r.res.Errors = append(r.res.Errors, err)
	r.log.WithField("class", c.Name).WithError(err).Warn("class instrumentation failed")
}

func (r *run) selectClasses() {
	f := filter.New(r.cfg, r.log)
	for _, c := range r.prog.ApplicationClasses() {
		if f.ShouldSkip(c) {
			r.res.Stats.ClassesSkipped++
			continue
		}
		r.classes = append(r.classes, c)
	}
	r.res.Stats.Classes = len(r.classes)
}

func (r *run) selected(name string) bool {
	for _, c := range r.classes {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (r *run) fastForward(snap *snapshot.Generator) {
	ff := r.cfg.FastForward
	if !ff.Enabled() {
		return
	}
	if !r.selected(ff.WorkerClass) {
		r.log.WithField("class", ff.WorkerClass).Warn("worker class is filtered out; fast-forward skipped")
		return
	}
	// The chain may span several classes; a failure puts all of them back.
	var cps []*ir.Checkpoint
	for _, c := range r.prog.ApplicationClasses() {
		cps = append(cps, ir.Save(c))
	}
	res, err := fastforward.New(r.prog, ff, snap, r.gen, r.log).Run()
	if err != nil {
		for _, cp := range cps {
			for _, m := range cp.Restore() {
				r.gen.Table().Remove(m)
			}
		}
		r.fail(r.prog.Class(ff.WorkerClass), err)
		return
	}
	r.res.Points = res.Located.Points
	r.res.Stats.DivergencePoints = len(res.Located.Points)
}

func (r *run) traceFlags() {
	flags, n, err := propagate.DeclareFlags(r.prog, r.classes)
	if err != nil {
		r.res.Errors = append(r.res.Errors, err)
		flags = propagate.BuildFlags(r.prog)
	}
	r.res.Flags = flags
	r.res.Stats.TraceFlags = n
}

func (r *run) declareFields() {
	ps := shadow.New(r.prog, r.log)
	for _, c := range r.classes {
		n, err := ps.Declare(c)
		r.res.Stats.ShadowFields += n
		if err != nil {
			r.fail(c, err)
		}
	}
}

// variants generates every class's variants as one unit: a class with a
// method that cannot be gated is put back as it was and marked failed.
func (r *run) variants() {
	for _, c := range r.classes {
		if r.failed[c] {
			continue
		}
		cp := ir.Save(c)
		methods, skipped := 0, 0
		var err error
		for _, m := range append([]*ir.Method(nil), c.Methods...) {
			if !variant.ShouldGate(m) {
				if m.HasBody() && !abi.IsGeneratedName(m.Name) {
					skipped++
				}
				continue
			}
			had := r.gen.Table().Has(m, variant.Instrumented)
			if err = r.gen.Generate(m); err != nil {
				break
			}
			if !had && r.gen.Table().Has(m, variant.Instrumented) {
				methods++
			}
		}
		if err != nil {
			for _, m := range cp.Restore() {
				r.gen.Table().Remove(m)
			}
			r.fail(c, err)
			continue
		}
		r.res.Stats.Methods += methods
		r.res.Stats.MethodsSkipped += skipped
	}
}

// rewrite applies fn to m and puts m's body back when fn fails, so a
// failed rewrite never leaves a half-edited body behind.
func (r *run) rewrite(m *ir.Method, fn func() error) error {
	if !m.HasBody() {
		return fn()
	}
	saved, _ := m.Body.Clone()
	err := fn()
	if err != nil {
		m.Body = saved
		r.failed[m.Class] = true
		r.res.Errors = append(r.res.Errors, err)
		r.log.WithFields(logrus.Fields{"class": m.Class.Name, "method": m.Name}).WithError(err).Warn("rewrite failed; method left as it was")
	}
	return err
}

func (r *run) redirect() {
	n, errs := redirect.New(r.prog, r.gen.Table(), r.log).Run()
	r.res.Stats.RedirectedCalls = n
	r.res.Errors = append(r.res.Errors, errs...)
}

func (r *run) shadowFields() {
	ps := shadow.New(r.prog, r.log)
	for _, m := range r.gen.Table().Methods(variant.Instrumented) {
		var n int
		if r.rewrite(m, func() (err error) {
			n, err = ps.Rewrite(m)
			return err
		}) == nil {
			r.res.Stats.FieldAccesses += n
		}
	}
}

func (r *run) propagate() {
	ps := propagate.New(r.prog, r.res.Flags, r.log)
	for _, m := range r.gen.Table().Methods(variant.Instrumented) {
		var counts map[propagate.Pattern]int
		if r.rewrite(m, func() (err error) {
			counts, err = ps.Method(m)
			return err
		}) != nil {
			continue
		}
		for _, n := range counts {
			r.res.Stats.WrappedSites += n
		}
	}
	for _, c := range r.classes {
		if r.failed[c] {
			continue
		}
		for _, m := range c.Methods {
			if k, ok := r.gen.Table().KindOf(m); ok && k.Kind != variant.Primary {
				continue
			}
			var added bool
			if r.rewrite(m, func() (err error) {
				added, err = ps.Prologue(m)
				return err
			}) == nil && added {
				r.res.Stats.TracePrologues++
			}
		}
	}
}

func (r *run) startpoint() {
	target, pilot, ok := r.cfg.StartpointPair()
	if !ok {
		return
	}
	added, err := startpoint.New(r.prog, r.cfg.Startpoint, r.log).Apply(target, pilot)
	if err != nil {
		r.res.Errors = append(r.res.Errors, err)
		return
	}
	if added {
		r.res.Stats.Startpoints++
	}
}

func (r *run) validate() {
	for _, c := range r.classes {
		for _, m := range c.Methods {
			if !m.HasBody() {
				continue
			}
			if err := ir.Validate(m); err != nil {
				r.res.Errors = append(r.res.Errors, err)
			}
		}
	}
}
