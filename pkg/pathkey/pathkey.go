// Package pathkey normalizes and combines namespace paths.
//
// A normalized path always starts and ends with "/", never contains an
// empty segment, and the root is exactly "/". Every function here is pure
// and total.
package pathkey

import "strings"

// Root is the normalized root path.
const Root = "/"

// Normalize returns the canonical form of p. Backslashes are treated as
// separators and "." segments are dropped; ".." is kept literally since
// namespace keys are opaque names, not filesystem paths.
func Normalize(p string) string {
	segs := Segments(p)
	if len(segs) == 0 {
		return Root
	}
	return "/" + strings.Join(segs, "/") + "/"
}

// Join appends name to base and normalizes the result. name may itself
// contain separators.
func Join(base, name string) string {
	return Normalize(base + "/" + name)
}

// Parent strips the last segment of p. The parent of the root is the root.
func Parent(p string) string {
	segs := Segments(p)
	if len(segs) <= 1 {
		return Root
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/") + "/"
}

// Segments splits p into its non-empty segments, for breadcrumbs.
func Segments(p string) []string {
	fields := strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	out := fields[:0]
	for _, f := range fields {
		if f == "." {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Base returns the last segment of p, or "" for the root.
func Base(p string) string {
	segs := Segments(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// IsUnder reports whether p equals dir or lies beneath it.
func IsUnder(p, dir string) bool {
	return strings.HasPrefix(Normalize(p), Normalize(dir))
}

// FilePath returns the slash path of a file called name inside dir,
// without a trailing slash: FilePath("/docs/", "a.md") == "/docs/a.md".
func FilePath(dir, name string) string {
	return strings.TrimSuffix(Join(dir, name), "/")
}

// Split is the inverse of FilePath: it returns the normalized directory
// and the base name of a file path.
func Split(file string) (dir, name string) {
	return Parent(file), Base(file)
}

// Crumb is one breadcrumb step.
type Crumb struct {
	Name string
	Path string
}

// Crumbs returns the breadcrumb trail for p, starting with the root.
func Crumbs(p string) []Crumb {
	segs := Segments(p)
	out := make([]Crumb, 0, len(segs)+1)
	out = append(out, Crumb{Name: "/", Path: Root})
	cur := Root
	for _, s := range segs {
		cur = cur + s + "/"
		out = append(out, Crumb{Name: s, Path: cur})
	}
	return out
}
