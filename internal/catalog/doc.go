// Package catalog persists the record of files already synchronized to the
// target, keyed by their path relative to the source root.
//
// The catalog is a single SQLite file so the session can download it from the
// device at start and upload it back at a clean end. Reads may run
// concurrently; every mutation is serialized behind one writer lock. Once
// closed, every operation fails with services.ErrStorage.
package catalog
