// Package target moves bytes to and from the place synchronized music lives.
//
// Store is the narrow contract the pipeline and session depend on. Device
// writes through a go-billy filesystem rooted at a mount point, S3 writes to
// an object storage bucket, and Serial wraps either so that only one call is
// ever in flight against the underlying medium. Discover and WaitForDevice
// locate the removable device a run should use.
//
// Paths passed to a Store are slash-separated and relative to its root.
// Every failure is tagged with services.ErrTransfer.
package target
