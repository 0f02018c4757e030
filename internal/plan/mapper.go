package plan

import (
	"path"
	"strings"

	"musicsync/internal/catalog"
	"musicsync/internal/fileutil"
)

// PathMapper places source keys under the music directory on the target.
type PathMapper struct {
	MusicDir        string
	OutputExtension string
}

// NewPathMapper returns a mapper rooted at musicDir. Transcoded files take
// outputExtension.
func NewPathMapper(musicDir, outputExtension string) PathMapper {
	return PathMapper{
		MusicDir:        strings.Trim(musicDir, "/"),
		OutputExtension: strings.TrimPrefix(outputExtension, "."),
	}
}

// CopyTargetPath returns where sourcePath lands on the target.
func (m PathMapper) CopyTargetPath(sourcePath string, transcode bool) string {
	rel := sourcePath
	if transcode {
		rel = fileutil.ChangeExtension(rel, m.OutputExtension)
	}
	return m.join(rel)
}

// RecordTargetPath returns the location of the file a record describes. The
// stored target file name wins over the source name, so transcoded files are
// found under their real extension.
func (m PathMapper) RecordTargetPath(rec catalog.Record) string {
	name := rec.TargetFileName
	if name == "" {
		name = path.Base(rec.SourcePath)
	}
	dir := path.Dir(rec.SourcePath)
	if dir == "." {
		return m.join(name)
	}
	return m.join(dir + "/" + name)
}

func (m PathMapper) join(rel string) string {
	if m.MusicDir == "" {
		return rel
	}
	return m.MusicDir + "/" + rel
}
