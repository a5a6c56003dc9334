// Package main hosts the vidshrink CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds an immutable
// settings snapshot for each run, and hands the selected files to the
// pipeline. Commands stay thin: scanning, estimation, encoding and history
// live in internal packages and are only wired together here.
package main
