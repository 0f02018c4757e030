// Package plan defines the operations a sync run applies to the target and
// the rules that map source keys onto target paths.
//
// Operations are immutable values built with Copy or Delete. Every operation
// exposes TargetPath, which orders the plan and labels it for display.
package plan
