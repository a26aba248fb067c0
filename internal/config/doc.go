// Package config loads the instrumenter configuration.
//
// Sources, lowest priority first:
//
//  1. Defaults
//  2. Configuration file: YAML, or the legacy key=value property format
//     for files ending in ".properties"
//  3. Environment variables with the DRYRUN_ prefix
//
// A YAML file looks like:
//
//	blacklist:
//	  classes: [org.slf4j, com.google]
//	startpoint:
//	  methods:
//	    - "<demo.Main: int serve(int)>"
//	    - "<demo.Main: int pilot(int)>"
//	fastforward:
//	  worker_class: demo.Worker
//	  mode: production
//	  targets:
//	    - {class: demo.Queue, method: take}
//	  shadow_fields: [pending]
package config
