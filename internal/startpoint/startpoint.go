// Package startpoint redirects a target method to a pilot method when a
// process property enables pilot mode. The check runs right after the
// identity statements:
//
//	$pilot = System.getProperty("PilotMode")
//	if $pilot == null goto body
//	$enabled = $pilot.equals("enabled")
//	if $enabled == false goto body
//	$ret = pilot(params)
//	return $ret
//	body: ...
package startpoint

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
)

const (
	propertyPrefix = "$pilot"
	enabledPrefix  = "$pilotEnabled"
	resultPrefix   = "$pilotResult"
)

// Pass inserts the pilot-mode check.
type Pass struct {
	prog     *ir.Program
	property string
	value    string
	log      logrus.FieldLogger
}

// New returns a pass using the property and value of cfg, falling back to
// PilotMode=enabled. A nil log discards messages.
func New(p *ir.Program, cfg config.Startpoint, log logrus.FieldLogger) *Pass {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	ps := &Pass{prog: p, property: cfg.Property, value: cfg.EnabledValue, log: log.WithField("pass", "startpoint")}
	if ps.property == "" {
		ps.property = abi.DefaultPilotProperty
	}
	if ps.value == "" {
		ps.value = abi.DefaultPilotValue
	}
	return ps
}

// Apply inserts the check into the method with signature target so that it
// calls the method with signature pilot. It reports false when the check
// is already present.
func (ps *Pass) Apply(target, pilot string) (bool, error) {
	m, err := ps.prog.MethodBySignature(target)
	if err != nil {
		return false, fmt.Errorf("startpoint target: %w", err)
	}
	pm, err := ps.prog.MethodBySignature(pilot)
	if err != nil {
		return false, fmt.Errorf("startpoint pilot: %w", err)
	}
	switch {
	case !m.HasBody():
		return false, ir.NewError(m, nil, "startpoint target has no body")
	case m.IsConstructor() || m.IsStaticInitializer():
		return false, ir.NewError(m, nil, "startpoint target must be a plain method")
	case !sameParams(m.Params, pm.Params) || m.Return != pm.Return:
		return false, ir.NewErrorWithSuggestion(m, nil,
			fmt.Sprintf("pilot %s does not match the target's parameters and return type", pm.Signature()),
			"declare the pilot with the same parameter list and return type")
	case !pm.IsStatic() && m.IsStatic():
		return false, ir.NewError(m, nil, "static target cannot call an instance pilot")
	}
	if ps.present(m) {
		return false, nil
	}

	b := m.Body
	first := b.FirstNonIdentity()
	prop := b.NewLocal(propertyPrefix, ir.StringType)
	enabled := b.NewLocal(enabledPrefix, ir.Boolean)

	var args []ir.Value
	for _, l := range b.ParamLocals() {
		args = append(args, l)
	}
	var call *ir.InvokeExpr
	if pm.IsStatic() {
		call = ir.NewStaticInvoke(pm.Ref(), args...)
	} else {
		call = ir.NewInstanceInvoke(ir.InvokeSpecial, b.ThisLocal(), pm.Ref(), args...)
	}

	stmts := []ir.Stmt{
		ir.NewAssign(prop, ir.NewStaticInvoke(abi.SystemGetProperty(), ir.StringConst(ps.property))),
		ir.NewIf(ir.Eq(prop, ir.Null(ir.StringType)), first),
		ir.NewAssign(enabled, ir.NewInstanceInvoke(ir.InvokeVirtual, prop, abi.StringEquals(), ir.StringConst(ps.value))),
		ir.NewIf(ir.Eq(enabled, ir.Bool(false)), first),
	}
	if m.Return.IsVoid() {
		stmts = append(stmts, ir.NewInvokeStmt(call), ir.NewReturnVoid())
	} else {
		ret := b.NewLocal(resultPrefix, m.Return)
		stmts = append(stmts, ir.NewAssign(ret, call), ir.NewReturn(ret))
	}
	b.InsertAfterIdentities(stmts...)

	if err := ir.Validate(m); err != nil {
		return false, err
	}
	ps.log.WithFields(logrus.Fields{
		"target":   m.Signature(),
		"pilot":    pm.Signature(),
		"property": ps.property,
	}).Info("installed pilot-mode redirect")
	return true, nil
}

// present reports whether m already starts with the property read.
func (ps *Pass) present(m *ir.Method) bool {
	a, ok := m.Body.FirstNonIdentity().(*ir.AssignStmt)
	if !ok {
		return false
	}
	inv, ok := a.RHS.(*ir.InvokeExpr)
	if !ok || inv.Method.Signature() != abi.SystemGetProperty().Signature() || len(inv.Args) != 1 {
		return false
	}
	c, ok := inv.Args[0].(*ir.Constant)
	return ok && c.Value == ps.property
}

func sameParams(a, b []ir.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
