package plan

import (
	"fmt"

	"musicsync/internal/catalog"
)

// Kind tags an operation.
type Kind int

const (
	// KindCopy transfers a source file, re-encoding it first when flagged.
	KindCopy Kind = iota + 1
	// KindDelete removes a target file whose source is gone.
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCopy:
		return "copy"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operation is one planned change to the target.
type Operation struct {
	kind              Kind
	sourcePath        string
	requiresTranscode bool
	targetPath        string
	record            catalog.Record
}

// Copy plans the transfer of sourcePath to targetPath.
func Copy(sourcePath string, requiresTranscode bool, targetPath string) Operation {
	return Operation{
		kind:              KindCopy,
		sourcePath:        sourcePath,
		requiresTranscode: requiresTranscode,
		targetPath:        targetPath,
	}
}

// Delete plans the removal of the target file described by rec.
func Delete(rec catalog.Record, targetPath string) Operation {
	return Operation{
		kind:       KindDelete,
		sourcePath: rec.SourcePath,
		targetPath: targetPath,
		record:     rec.Clone(),
	}
}

// Kind reports whether the operation copies or deletes.
func (o Operation) Kind() Kind { return o.kind }

// SourcePath returns the catalog key the operation acts on.
func (o Operation) SourcePath() string { return o.sourcePath }

// RequiresTranscode reports whether a Copy re-encodes before upload.
func (o Operation) RequiresTranscode() bool { return o.requiresTranscode }

// TargetPath returns the slash-separated location on the target.
func (o Operation) TargetPath() string { return o.targetPath }

// Record returns the prior catalog record carried by a Delete.
func (o Operation) Record() catalog.Record { return o.record.Clone() }

// Label names the operation for previews: transcode, copy, or delete.
func (o Operation) Label() string {
	if o.kind == KindCopy && o.requiresTranscode {
		return "transcode"
	}
	return o.kind.String()
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s", o.Label(), o.targetPath)
}

// Less orders operations by target path, then kind, then source path.
func Less(a, b Operation) bool {
	if a.targetPath != b.targetPath {
		return a.targetPath < b.targetPath
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.sourcePath < b.sourcePath
}
