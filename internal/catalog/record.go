package catalog

import (
	"bytes"
	"encoding/hex"
	"time"
)

// HashSize is the length of a content hash (MD5).
const HashSize = 16

// Record describes one source file as of its last successful transfer.
type Record struct {
	SourcePath     string
	ModifiedAt     time.Time
	ContentHash    []byte
	TargetFileName string
}

// HashHex renders the content hash for logs and tables.
func (r Record) HashHex() string {
	return hex.EncodeToString(r.ContentHash)
}

// Equal reports whether two records carry identical values.
func (r Record) Equal(other Record) bool {
	return r.SourcePath == other.SourcePath &&
		r.ModifiedAt.Equal(other.ModifiedAt) &&
		bytes.Equal(r.ContentHash, other.ContentHash) &&
		r.TargetFileName == other.TargetFileName
}

// Clone returns a copy that does not share the hash slice.
func (r Record) Clone() Record {
	r.ModifiedAt = r.ModifiedAt.UTC()
	r.ContentHash = append([]byte(nil), r.ContentHash...)
	return r
}
