// Package filter decides which classes the passes may touch.
package filter

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/dryrun/internal/abi"
	"github.com/kolkov/dryrun/internal/config"
	"github.com/kolkov/dryrun/internal/ir"
)

// runtimeMarker is contained in the name of every runtime-library class.
const runtimeMarker = "dryrun"

// Filter is the class whitelist/blacklist policy.
type Filter struct {
	blacklist []string
	whitelist []string
	manual    []string
	log       logrus.FieldLogger
}

// New builds a filter from cfg. A nil log discards skip decisions.
func New(cfg *config.Config, log logrus.FieldLogger) *Filter {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Filter{
		blacklist: nonEmpty(cfg.Blacklist.Classes),
		whitelist: nonEmpty(cfg.Whitelist.Classes),
		manual:    nonEmpty(cfg.Manual.Ignore.Classes),
		log:       log.WithField("pass", "filter"),
	}
}

// ShouldSkip reports whether c must not be instrumented.
func (f *Filter) ShouldSkip(c *ir.Class) bool {
	if reason := f.skipReason(c); reason != "" {
		f.log.WithField("class", c.Name).Debugf("skipping: %s", reason)
		return true
	}
	return false
}

// ShouldSkipForTracing is ShouldSkip with whitelisted classes always kept.
// Interfaces and phantom classes are skipped regardless.
func (f *Filter) ShouldSkipForTracing(c *ir.Class) bool {
	if c.IsInterface() || c.Phantom {
		return true
	}
	if f.IsInWhiteList(c) {
		return false
	}
	return f.ShouldSkip(c)
}

func (f *Filter) skipReason(c *ir.Class) string {
	switch {
	case c.IsInterface() || c.Phantom:
		return "interface or phantom class"
	case strings.Contains(c.Name, runtimeMarker) || abi.IsRuntimeClass(c.Name):
		return "runtime class"
	case f.IsInBlackList(c):
		return "blacklisted"
	case f.IsManuallyInstrumented(c):
		return "manually instrumented"
	case IsInstrumented(c):
		return "already instrumented"
	}
	return ""
}

// IsInWhiteList reports whether c matches a whitelist entry.
func (f *Filter) IsInWhiteList(c *ir.Class) bool { return matches(c.Name, f.whitelist) }

// IsInBlackList reports whether c matches a blacklist entry.
func (f *Filter) IsInBlackList(c *ir.Class) bool { return matches(c.Name, f.blacklist) }

// IsManuallyInstrumented reports whether c matches a manual-ignore entry.
func (f *Filter) IsManuallyInstrumented(c *ir.Class) bool { return matches(c.Name, f.manual) }

// IsInstrumented reports whether c already carries its trace-flag marker.
func IsInstrumented(c *ir.Class) bool {
	return c.Field(abi.TraceFlagName(c.Name)) != nil
}

// Classes returns the application classes of p that pass ShouldSkip, in
// name order.
func (f *Filter) Classes(p *ir.Program) []*ir.Class {
	var out []*ir.Class
	for _, c := range p.ApplicationClasses() {
		if !f.ShouldSkip(c) {
			out = append(out, c)
		}
	}
	return out
}

func matches(name string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
