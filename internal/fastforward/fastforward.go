// Package fastforward instruments a worker's divergence chain so that a
// shadow worker can resume where the primary left off.
//
// For every method on the located chain the pass:
//   - clones the method into m$shadow, substituting configured shadow
//     fields (f becomes f$dryrun)
//   - inserts CAPTURE and FIELD-CAPTURE before the divergence point of the
//     primary body
//   - default-initializes the shadow's locals and adds an isFastForward
//     check that jumps straight to a guarded RESTORE placed before the
//     divergence point; the recorded value of a shadow field f is restored
//     into f$dryrun, so the shadow never writes f
//
// The deepest point also resets the baggage from fast-forward to plain
// dry-run shadow mode once its state is restored. The worker class gets an
// isShadow field; run() of a shadow instance enters run$shadow in
// fast-forward mode.
package fastforward

import (
	"fmt"
	"io"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
	"github.com/kolkov/dryrun/internal/locator"
	"github.com/kolkov/dryrun/internal/snapshot"
	"github.com/kolkov/dryrun/internal/variant"
)

// Local name prefixes used by the generated checks.
const (
	fastForwardLocal = "$isFastForward"
	isShadowLocal    = "$isShadow"
)

// Result summarizes one run of the pass.
type Result struct {
	Located      *locator.Result
	Shadows      []*ir.Method
	ShadowFields []*ir.Field
}

// Pass is the fast-forward instrumentation pass.
type Pass struct {
	prog *ir.Program
	cfg  config.FastForward
	snap *snapshot.Generator
	gen  *variant.Generator
	log  logrus.FieldLogger
}

// New returns a pass over p. A nil log discards messages.
func New(p *ir.Program, cfg config.FastForward, snap *snapshot.Generator, gen *variant.Generator, log logrus.FieldLogger) *Pass {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Pass{prog: p, cfg: cfg, snap: snap, gen: gen, log: log.WithField("pass", "fastforward")}
}

// Root returns the worker's root method: the parameterless method named
// by the configuration.
func (ps *Pass) Root() (*ir.Method, error) {
	worker := ps.prog.Class(ps.cfg.WorkerClass)
	if worker == nil || worker.Phantom {
		return nil, fmt.Errorf("fastforward: worker class %s not found", ps.cfg.WorkerClass)
	}
	name := ps.cfg.RootMethod
	if name == "" {
		name = "run"
	}
	for _, m := range worker.MethodsByName(name) {
		if len(m.Params) == 0 && m.HasBody() {
			return m, nil
		}
	}
	return nil, &ir.Error{Class: worker.Name, Method: name, Message: "worker has no parameterless root method with a body"}
}

// Run locates the chain and instruments it.
func (ps *Pass) Run() (*Result, error) {
	root, err := ps.Root()
	if err != nil {
		return nil, err
	}
	if root.Class.Method(abi.ShadowName(root.Name), root.Params, root.Return) != nil {
		ps.log.WithField("class", root.Class.Name).Info("worker already fast-forward instrumented")
		return &Result{Located: &locator.Result{}}, nil
	}
	loc := locator.New(ps.prog, locator.NewPredicate(ps.prog, ps.cfg), ps.log)
	res := &Result{Located: loc.Locate(root)}
	if len(res.Located.Points) == 0 {
		ps.log.WithField("class", root.Class.Name).Warn("no divergence point found; worker left unchanged")
		return res, nil
	}
	deepest, _ := res.Located.Deepest()

	for _, pt := range res.Located.Points {
		shadow, err := ps.instrument(pt, pt.Stmt == deepest.Stmt, res)
		if err != nil {
			return res, err
		}
		res.Shadows = append(res.Shadows, shadow)
	}
	if err := ps.shadowPrologue(root); err != nil {
		return res, err
	}
	ps.log.WithFields(logrus.Fields{
		"class":  root.Class.Name,
		"points": len(res.Located.Points),
	}).Info("fast-forward chain instrumented")
	return res, nil
}

func (ps *Pass) instrument(pt locator.DivergePoint, deepest bool, res *Result) (*ir.Method, error) {
	m := pt.Method
	log := ps.log.WithFields(logrus.Fields{"class": m.Class.Name, "method": m.Name})

	// Clone before the capture lands in the primary.
	shadow, mapping, err := ps.gen.Clone(m, variant.Shadow, abi.ShadowName(m.Name))
	if err != nil {
		return nil, err
	}
	dp, ok := mapping[pt.Stmt]
	if !ok {
		return nil, ir.NewError(m, pt.Stmt, "divergence point lost while cloning")
	}
	ps.substituteShadowFields(shadow, res)

	sig := m.Signature()
	fields := snapshot.EligibleFields(m.Class, m.IsStatic())

	locals := snapshot.Eligible(m.Body)
	capture := ps.snap.Capture(m.Body, sig, locals)
	capture = append(capture, ps.snap.CaptureFields(m.Body, sig, m.Body.ThisLocal(), fields)...)
	m.Body.InsertBefore(pt.Stmt, capture...)

	sb := shadow.Body
	shadowLocals := snapshot.Eligible(sb)
	this := sb.ThisLocal()

	// Guarded restore directly before the divergence point.
	guardFlag := sb.NewLocal(fastForwardLocal, ir.Boolean)
	restore := []ir.Stmt{
		ir.NewAssign(guardFlag, ir.NewStaticInvoke(abi.IsFastForward())),
		ir.NewIf(ir.Eq(guardFlag, ir.Bool(false)), dp),
	}
	restore = append(restore, ps.snap.Restore(sb, sig, shadowLocals)...)
	restore = append(restore, ps.snap.RestoreFieldsTo(sb, sig, this, fields, func(f *ir.Field) *ir.Field {
		if !slices.Contains(ps.cfg.ShadowFields, f.Name) {
			return nil
		}
		return ps.declareShadowField(f, res)
	})...)
	if deepest {
		restore = append(restore,
			ir.NewInvokeStmt(ir.NewStaticInvoke(abi.ClearBaggage())),
			ir.NewInvokeStmt(ir.NewStaticInvoke(abi.CreateDryRunBaggage())),
			ir.NewInvokeStmt(ir.NewStaticInvoke(abi.CreateShadowBaggage())),
		)
	}
	sb.InsertBefore(dp, restore...)

	// Entry: default-initialize, then jump to the restore in fast-forward mode.
	entry := make([]ir.Stmt, 0, len(shadowLocals)+2)
	for _, l := range shadowLocals {
		entry = append(entry, ir.NewAssign(l, ir.ZeroValue(l.Type())))
	}
	entryFlag := sb.NewLocal(fastForwardLocal, ir.Boolean)
	entry = append(entry,
		ir.NewAssign(entryFlag, ir.NewStaticInvoke(abi.IsFastForward())),
		ir.NewIf(ir.Eq(entryFlag, ir.Bool(true)), restore[0]),
	)
	sb.InsertAfterIdentities(entry...)

	if err := ir.Validate(shadow); err != nil {
		return nil, err
	}
	if err := ir.Validate(m); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"point":   sb.IndexOf(dp),
		"locals":  len(shadowLocals),
		"fields":  len(fields),
		"deepest": deepest,
	}).Debug("divergence point instrumented")
	return shadow, nil
}

// substituteShadowFields rewrites accesses to configured shadow fields in
// the shadow body to their f$dryrun counterparts, declaring them as needed.
func (ps *Pass) substituteShadowFields(m *ir.Method, res *Result) {
	if len(ps.cfg.ShadowFields) == 0 {
		return
	}
	for _, s := range m.Body.Stmts {
		for _, v := range ir.FieldRefs(s) {
			var ref *ir.FieldRef
			switch r := v.(type) {
			case *ir.InstanceFieldRef:
				ref = &r.Field
			case *ir.StaticFieldRef:
				ref = &r.Field
			}
			if ref == nil || !slices.Contains(ps.cfg.ShadowFields, ref.Name) {
				continue
			}
			orig := ps.prog.ResolveField(*ref)
			if orig == nil {
				continue
			}
			sf := ps.declareShadowField(orig, res)
			*ref = sf.Ref()
		}
	}
}

func (ps *Pass) declareShadowField(orig *ir.Field, res *Result) *ir.Field {
	name := orig.Name + abi.ShadowFieldSuffix
	if f := orig.Class.Field(name); f != nil {
		return f
	}
	f := &ir.Field{
		Name: name,
		Type: orig.Type,
		Mods: (orig.Mods &^ ir.ModFinal).WidenToPublic(),
	}
	// Name uniqueness was checked above.
	_ = orig.Class.AddField(f)
	res.ShadowFields = append(res.ShadowFields, f)
	ps.log.WithFields(logrus.Fields{"class": orig.Class.Name, "field": name}).Debug("declared shadow field")
	return f
}

// shadowPrologue adds the isShadow field to the worker and prepends
//
//	if this.isShadow { createFastForwardBaggage(); this.run$shadow(); return }
//
// to the primary root.
func (ps *Pass) shadowPrologue(root *ir.Method) error {
	worker := root.Class
	field := worker.Field(abi.IsShadowField)
	if field == nil {
		field = &ir.Field{Name: abi.IsShadowField, Type: ir.Boolean, Mods: ir.ModPublic}
		if err := worker.AddField(field); err != nil {
			return err
		}
	}
	shadow := worker.Method(abi.ShadowName(root.Name), root.Params, root.Return)
	if shadow == nil {
		return ir.NewError(root, nil, "root has no shadow variant")
	}
	b := root.Body
	this := b.ThisLocal()
	if this == nil {
		return ir.NewError(root, nil, "root method must be an instance method")
	}
	resume := b.FirstNonIdentity()
	flag := b.NewLocal(isShadowLocal, ir.Boolean)
	call := ir.NewInstanceInvoke(ir.InvokeSpecial, this, shadow.Ref())
	stmts := []ir.Stmt{
		ir.NewAssign(flag, &ir.InstanceFieldRef{Base: this, Field: field.Ref()}),
		ir.NewIf(ir.Eq(flag, ir.Bool(false)), resume),
		ir.NewInvokeStmt(ir.NewStaticInvoke(abi.CreateFastForwardBaggage())),
	}
	if root.Return.IsVoid() {
		stmts = append(stmts, ir.NewInvokeStmt(call), ir.NewReturnVoid())
	} else {
		r := b.NewLocal("$result", root.Return)
		stmts = append(stmts, ir.NewAssign(r, call), ir.NewReturn(r))
	}
	b.InsertAfterIdentities(stmts...)
	return ir.Validate(root)
}
