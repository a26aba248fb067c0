package locator

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/twmb/algoimpl/go/graph"

	"github.com/kolkov/dryrun/internal/ir"
)

// CallGraph is the static call graph reachable from a root method. Only
// methods with bodies are nodes; calls into the library are dropped.
type CallGraph struct {
	g     *graph.Graph
	nodes map[*ir.Method]graph.Node
	order []*ir.Method
	log   logrus.FieldLogger
}

// BuildCallGraph walks every call reachable from root with an explicit
// worklist. Calls resolve against their static declaring class. A nil log
// discards messages.
func BuildCallGraph(p *ir.Program, root *ir.Method, log logrus.FieldLogger) *CallGraph {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	cg := &CallGraph{
		g:     graph.New(graph.Directed),
		nodes: make(map[*ir.Method]graph.Node),
		log:   log,
	}
	work := []*ir.Method{root}
	cg.node(root)
	for len(work) > 0 {
		m := work[len(work)-1]
		work = work[:len(work)-1]
		if !m.HasBody() {
			continue
		}
		for _, s := range m.Body.Stmts {
			inv := ir.InvokeOf(s)
			if inv == nil {
				continue
			}
			callee := p.ResolveMethod(inv.Method)
			if callee == nil || !callee.HasBody() {
				continue
			}
			_, seen := cg.nodes[callee]
			cg.link(m, callee)
			if !seen {
				work = append(work, callee)
			}
		}
	}
	return cg
}

// link adds the edge caller -> callee. MakeEdge only fails for a node
// owned by another graph; such an edge is dropped.
func (cg *CallGraph) link(caller, callee *ir.Method) {
	if err := cg.g.MakeEdge(cg.node(caller), cg.node(callee)); err != nil {
		cg.log.WithError(err).WithFields(logrus.Fields{
			"caller": caller.Signature(),
			"callee": callee.Signature(),
		}).Debug("call edge dropped")
	}
}

func (cg *CallGraph) node(m *ir.Method) graph.Node {
	if n, ok := cg.nodes[m]; ok {
		return n
	}
	n := cg.g.MakeNode()
	*n.Value = m
	cg.nodes[m] = n
	cg.order = append(cg.order, m)
	return n
}

// Methods returns the nodes in discovery order.
func (cg *CallGraph) Methods() []*ir.Method { return cg.order }

// Contains reports whether m is reachable from the root.
func (cg *CallGraph) Contains(m *ir.Method) bool {
	_, ok := cg.nodes[m]
	return ok
}

// Callees returns the direct callees of m with bodies.
func (cg *CallGraph) Callees(m *ir.Method) []*ir.Method {
	n, ok := cg.nodes[m]
	if !ok {
		return nil
	}
	var out []*ir.Method
	for _, c := range cg.g.Neighbors(n) {
		out = append(out, (*c.Value).(*ir.Method))
	}
	return out
}

// Cycles returns the recursive method groups: strongly connected components
// with more than one method, plus self-recursive methods.
func (cg *CallGraph) Cycles() [][]*ir.Method {
	var out [][]*ir.Method
	for _, comp := range cg.g.StronglyConnectedComponents() {
		group := make([]*ir.Method, 0, len(comp))
		for _, n := range comp {
			group = append(group, (*n.Value).(*ir.Method))
		}
		if len(group) == 1 && !cg.callsItself(group[0]) {
			continue
		}
		out = append(out, group)
	}
	return out
}

func (cg *CallGraph) callsItself(m *ir.Method) bool {
	for _, c := range cg.Callees(m) {
		if c == m {
			return true
		}
	}
	return false
}
