// Package main hosts the recap CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into pipeline runs,
// chunk planning and probing, stand-alone audits, chunk store maintenance,
// folder watching, and configuration scaffolding. It centralizes config
// resolution and logger setup so subcommands only parse flags and render
// results.
//
// Keep this package lean: new behavior belongs in the internal packages and
// is surfaced here through a command or flag.
package main
