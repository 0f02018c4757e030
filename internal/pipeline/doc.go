// Package pipeline executes a reconciled plan against the target.
//
// Operations run on a bounded worker pool. The catalog is only written after
// the target effect of an operation is confirmed, so an interrupted run never
// records a file that did not reach the target. By default the first
// transcode or transfer failure cancels the batch; with failure isolation the
// remaining operations still run and every failure is reported together.
package pipeline
