// Package session runs one synchronization end to end.
//
// A Controller takes the single-run lock, lists the source library, restores
// the catalog snapshot from the target, reconciles, asks the caller to
// confirm, executes, and finally pushes the updated snapshot back to the
// target. The controller never prints; confirmation and previews are supplied
// by the caller as functions.
package session
