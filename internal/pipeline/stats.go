package pipeline

// Stats tracks what one pipeline run changed.
//
// Every counter is an integer increment during a pass, so collecting them
// costs nothing measurable.
//
// Use Case:
// The CLI prints a summary after instrument and writes them into the
// YAML report:
//
//	dryrun instrument --config dryrun.yaml app.jir
//	instrumented 4 classes, 11 methods -> build
//	  - 22 variants, 3 divergence points, 6 shadowed fields
//	  - 2 wrapped hand-offs, 1 trace prologues
//	  - 1 skipped
//
// Thread Safety: NOT thread-safe (single-threaded pipeline).
type Stats struct {
	Classes          int `yaml:"classes"`           // Classes that passed the filter
	Methods          int `yaml:"methods"`           // Primary methods given variants
	Variants         int `yaml:"variants"`          // $instrumentation, $original and $shadow bodies added
	DivergencePoints int `yaml:"divergence_points"` // Located divergence points
	ShadowFields     int `yaml:"shadow_fields"`     // f$dryRun pairs declared
	FieldAccesses    int `yaml:"field_accesses"`    // Field accesses redirected in instrumented bodies
	RedirectedCalls  int `yaml:"redirected_calls"`  // Call sites redirected to a sibling variant
	WrappedSites     int `yaml:"wrapped_sites"`     // Hand-off sites rewritten by propagation
	TraceFlags       int `yaml:"trace_flags"`       // needDryRunTrace$ fields declared
	TracePrologues   int `yaml:"trace_prologues"`   // Task entry points given a trace prologue
	Startpoints      int `yaml:"startpoints"`       // Pilot-mode redirects installed

	ClassesSkipped int `yaml:"classes_skipped"` // Classes rejected by the filter
	MethodsSkipped int `yaml:"methods_skipped"` // Methods not gated (native, abstract, enum, static initializer)
	ClassesFailed  int `yaml:"classes_failed"`  // Classes abandoned after an error
}

// Total returns the number of code changes made.
func (s *Stats) Total() int {
	return s.Variants + s.DivergencePoints + s.ShadowFields + s.FieldAccesses +
		s.RedirectedCalls + s.WrappedSites + s.TraceFlags + s.TracePrologues + s.Startpoints
}

// TotalSkipped returns the number of skipped classes and methods.
func (s *Stats) TotalSkipped() int {
	return s.ClassesSkipped + s.MethodsSkipped + s.ClassesFailed
}
