package jir

import (
	"bufio"
	"io"
	"strings"

	"github.com/kolkov/dryrun/internal/ir"
)

// FormatVersion is written in the header of every printed document.
const FormatVersion = "1.0"

// Print writes classes as a jir document. Parse of the output yields
// classes that print identically.
func Print(w io.Writer, classes []*ir.Class) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("jir " + FormatVersion + "\n")
	for _, c := range classes {
		bw.WriteByte('\n')
		printClass(bw, c)
	}
	return bw.Flush()
}

// PrintProgram prints the application classes of p.
func PrintProgram(w io.Writer, p *ir.Program) error {
	return Print(w, p.ApplicationClasses())
}

func printClass(w *bufio.Writer, c *ir.Class) {
	var head []string
	if c.Phantom {
		head = append(head, "phantom")
	}
	if mods := (c.Mods &^ ir.ModInterface).String(); mods != "" {
		head = append(head, mods)
	}
	if c.IsInterface() {
		head = append(head, "interface", c.Name)
		if len(c.Interfaces) > 0 {
			head = append(head, "extends", strings.Join(c.Interfaces, ", "))
		}
	} else {
		head = append(head, "class", c.Name)
		if c.Super != "" {
			head = append(head, "extends", c.Super)
		}
		if len(c.Interfaces) > 0 {
			head = append(head, "implements", strings.Join(c.Interfaces, ", "))
		}
	}
	w.WriteString(strings.Join(head, " ") + " {\n")
	for _, f := range c.Fields {
		w.WriteString("    field ")
		if mods := f.Mods.String(); mods != "" {
			w.WriteString(mods + " ")
		}
		w.WriteString(f.Type.String() + " " + f.Name + "\n")
	}
	for _, m := range c.Methods {
		printMethod(w, m)
	}
	w.WriteString("}\n")
}

func printMethod(w *bufio.Writer, m *ir.Method) {
	w.WriteString("    method ")
	if mods := m.Mods.String(); mods != "" {
		w.WriteString(mods + " ")
	}
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.String()
	}
	w.WriteString(m.Return.String() + " " + m.Name + "(" + strings.Join(params, ", ") + ")")
	if m.Body == nil {
		w.WriteByte('\n')
		return
	}
	w.WriteString(" {\n")
	b := m.Body
	for _, l := range b.Locals {
		w.WriteString("        local " + l.Name + " " + l.Type().String() + "\n")
	}
	labels := b.Labels()
	for _, s := range b.Stmts {
		if l, ok := labels[s]; ok {
			w.WriteString("      " + l + ":\n")
		}
		w.WriteString("        " + ir.FormatStmt(s, labels) + "\n")
	}
	for _, t := range b.Traps {
		w.WriteString("        catch " + t.Exception + " from " + labels[t.Begin] + " to " + labels[t.End] + " with " + labels[t.Handler] + "\n")
	}
	w.WriteString("    }\n")
}
