package category

import "strings"

// DerivedSourcePrefix marks records produced by allocation. They are never
// read back as aggregate input.
const DerivedSourcePrefix = "calc:"

func DerivedSource(origin string) string {
	return DerivedSourcePrefix + origin
}

func IsDerivedSource(source string) bool {
	return strings.HasPrefix(source, DerivedSourcePrefix)
}

// Segments splits a code into its levels. A trailing dot, as on emitted
// level-1 codes, is ignored.
func Segments(code string) []string {
	code = strings.TrimSuffix(strings.TrimSpace(code), ".")
	if code == "" {
		return nil
	}
	return strings.Split(code, ".")
}

// Level is the depth of code: "2" and "2." are 1, "2.A.1" is 3.
func Level(code string) int {
	return len(Segments(code))
}

// Truncate shortens code to at most level segments.
func Truncate(code string, level int) string {
	segs := Segments(code)
	if level <= 0 {
		return ""
	}
	if level < len(segs) {
		segs = segs[:level]
	}
	return strings.Join(segs, ".")
}

// Parent drops the last segment. Level-1 codes have no parent.
func Parent(code string) string {
	return Truncate(code, Level(code)-1)
}

// Expand lists the ancestors-or-self of code between levels from and to,
// shallowest first. Expand("2.A.1", 2, 3) is ["2.A", "2.A.1"].
func Expand(code string, from, to int) []string {
	depth := Level(code)
	if from < 1 {
		from = 1
	}
	if to > depth {
		to = depth
	}
	out := make([]string, 0, max(to-from+1, 0))
	for lvl := from; lvl <= to; lvl++ {
		out = append(out, Truncate(code, lvl))
	}
	return out
}

// IsAncestor reports whether ancestor is code itself or one of its parents.
func IsAncestor(ancestor, code string) bool {
	a, c := Segments(ancestor), Segments(code)
	if len(a) == 0 || len(a) > len(c) {
		return false
	}
	for i := range a {
		if a[i] != c[i] {
			return false
		}
	}
	return true
}
