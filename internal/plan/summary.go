package plan

import (
	"fmt"
	"sort"
)

// Summary counts planned work by kind.
type Summary struct {
	Copies     int
	Transcodes int
	Deletes    int
}

// Summarize tallies ops. Transcodes are a subset of Copies.
func Summarize(ops []Operation) Summary {
	var s Summary
	for _, op := range ops {
		switch op.Kind() {
		case KindCopy:
			s.Copies++
			if op.RequiresTranscode() {
				s.Transcodes++
			}
		case KindDelete:
			s.Deletes++
		}
	}
	return s
}

// Total returns the number of operations.
func (s Summary) Total() int {
	return s.Copies + s.Deletes
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files will be copied (%d of which will be transcoded), and %d will be deleted",
		s.Copies, s.Transcodes, s.Deletes)
}

// labelWidth fits the longest label, "transcode".
const labelWidth = 9

// PreviewLines renders one aligned "label path" line per operation.
func PreviewLines(ops []Operation) []string {
	lines := make([]string, 0, len(ops))
	for _, op := range ops {
		lines = append(lines, fmt.Sprintf("%-*s %s", labelWidth, op.Label(), op.TargetPath()))
	}
	return lines
}

// Sort orders ops in place by target path, then kind, then source path.
func Sort(ops []Operation) {
	sort.SliceStable(ops, func(i, j int) bool { return Less(ops[i], ops[j]) })
}
