package gamedata

import "slices"

// ListEdit turns one list into another: optionally clear it, then append.
type ListEdit struct {
	Clear  bool
	Append []string
}

// DiffList picks the cheaper of appending a suffix or rebuilding the list from scratch. It is not a minimal
// edit script; it only guarantees that Apply(old) equals next.
func DiffList(old, next []string) ListEdit {
	switch {
	case len(next) == 0:
		return ListEdit{Clear: true}
	case len(old) == 0:
		return ListEdit{Clear: true, Append: slices.Clone(next)}
	case len(old) <= len(next) && slices.Equal(old, next[:len(old)]):
		return ListEdit{Append: slices.Clone(next[len(old):])}
	default:
		return ListEdit{Clear: true, Append: slices.Clone(next)}
	}
}

// IsNoop reports whether the edit leaves any list unchanged.
func (e ListEdit) IsNoop() bool {
	return !e.Clear && len(e.Append) == 0
}

// Apply returns the list e produces from old. old is not modified.
func (e ListEdit) Apply(old []string) []string {
	if e.Clear {
		return slices.Clone(e.Append)
	}
	return append(slices.Clone(old), e.Append...)
}
