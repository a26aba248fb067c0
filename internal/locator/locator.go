// Package locator finds divergence points: the statements at which a
// primary worker and its shadow may separate and later resynchronize.
//
// The search starts at the worker's root method and follows one chain of
// calls. In each method the first statement the predicate accepts becomes
// the method's divergence point. A matching call continues the search in
// its callee; a terminal match, or a call into a method without a body,
// ends it. Statements inside exception handlers are never divergence
// points.
package locator

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/ir"
)

// DivergePoint is a located (method, statement) pair.
type DivergePoint struct {
	Method *ir.Method
	Stmt   ir.Stmt
	// Index is the statement's position in the body at location time.
	Index int
}

func (d DivergePoint) String() string {
	return fmt.Sprintf("%s#%d: %s", d.Method.Signature(), d.Index, ir.FormatStmt(d.Stmt, nil))
}

// Result is the outcome of one search.
type Result struct {
	// Points lists the divergence points from the root inward. The last
	// one is the deepest.
	Points []DivergePoint

	// Graph is the call graph reachable from the root.
	Graph *CallGraph

	byMethod map[*ir.Method]int
}

// Lookup returns m's divergence point.
func (r *Result) Lookup(m *ir.Method) (DivergePoint, bool) {
	i, ok := r.byMethod[m]
	if !ok {
		return DivergePoint{}, false
	}
	return r.Points[i], true
}

// Deepest returns the innermost divergence point of the chain.
func (r *Result) Deepest() (DivergePoint, bool) {
	if len(r.Points) == 0 {
		return DivergePoint{}, false
	}
	return r.Points[len(r.Points)-1], true
}

// Methods returns the methods that have a divergence point, root first.
func (r *Result) Methods() []*ir.Method {
	out := make([]*ir.Method, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.Method
	}
	return out
}

// Locator runs the divergence-point search.
type Locator struct {
	prog *ir.Program
	pred Predicate
	log  logrus.FieldLogger
}

// New returns a locator over p. A nil log discards progress messages.
func New(p *ir.Program, pred Predicate, log logrus.FieldLogger) *Locator {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Locator{prog: p, pred: pred, log: log.WithField("pass", "locate")}
}

// Locate searches from root. Each method is visited at most once, so
// recursive call chains terminate. Terminal predicates do not apply to the
// root itself: the worker loop is where the chain starts, not where it
// ends.
func (l *Locator) Locate(root *ir.Method) *Result {
	res := &Result{
		Graph:    BuildCallGraph(l.prog, root, l.log),
		byMethod: make(map[*ir.Method]int),
	}
	if cycles := res.Graph.Cycles(); len(cycles) > 0 {
		l.log.WithField("cycles", len(cycles)).Debug("call graph is recursive")
	}

	visited := make(map[*ir.Method]bool)
	stack := []*ir.Method{root}
	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[m] || !m.HasBody() {
			continue
		}
		visited[m] = true

		next, found := l.scan(m, m == root, res)
		if !found {
			l.log.WithFields(logrus.Fields{"class": m.Class.Name, "method": m.Name}).Debug("no divergence point")
			continue
		}
		if next != nil {
			stack = append(stack, next)
		}
	}
	return res
}

// scan records the first match in m and returns the callee to continue
// in, if any.
func (l *Locator) scan(m *ir.Method, isRoot bool, res *Result) (*ir.Method, bool) {
	handlers := m.Body.HandlerRegion()
	for i, s := range m.Body.Stmts {
		if handlers[s] || ir.IsIdentity(s) {
			continue
		}
		if ref, ok := l.pred.Chain(s); ok {
			l.record(res, DivergePoint{Method: m, Stmt: s, Index: i})
			callee := l.prog.ResolveMethod(ref)
			if callee == nil || !callee.HasBody() {
				return nil, true
			}
			return callee, true
		}
		if !isRoot && l.pred.Terminal(s) {
			l.record(res, DivergePoint{Method: m, Stmt: s, Index: i})
			return nil, true
		}
	}
	return nil, false
}

func (l *Locator) record(res *Result, p DivergePoint) {
	res.byMethod[p.Method] = len(res.Points)
	res.Points = append(res.Points, p)
	l.log.WithFields(logrus.Fields{
		"class":  p.Method.Class.Name,
		"method": p.Method.Name,
		"index":  p.Index,
	}).Debug("divergence point")
}
