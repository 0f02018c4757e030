// Package main hosts the musicsync CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration once, composes the sync session
// from internal packages, and renders plans, catalogs, and readiness reports
// for the terminal. Behaviour lives in internal/; commands here only wire and
// present it.
package main
