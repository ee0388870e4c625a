// Package version implements conda's version-ordering rules: epoch
// prefix, '.'-separated components, per-component splitting into runs of
// digits and non-digits, and the dev/post/alpha/numeric interleaving
// described in spec.md §4.3. It underlies the LatestVersion filter and
// every version-range match-specification constraint, so it gets its own
// dedicated module with exhaustive unit tests rather than living inline
// in the filter or matchspec packages.
package version

import (
	"regexp"
	"strconv"
	"strings"
)

// rank orders the distinct atom classes. Within a rank, numeric atoms
// compare as integers and alpha atoms compare lexically; every other
// rank is a singleton class.
type rank int

const (
	rankDev rank = iota
	rankUnderscore
	rankAlpha
	// rankEmpty stands in for "nothing follows here" when one version's
	// component has fewer atoms than the other's. It ranks between alpha
	// suffixes and numeric continuations so that a plain final release
	// ("1.0") sorts after its prereleases ("1.0dev", "1.0_", "1.0a1") but
	// before its post-releases ("1.0post1"), matching spec.md's stated
	// chain dev < "_" < a < number < post with "nothing" occupying the
	// final-release slot just under a bare number.
	rankEmpty
	rankNumeric
	rankPost
)

type atom struct {
	rank rank
	num  int64
	str  string
}

var tokenRE = regexp.MustCompile(`[0-9]+|[^0-9]+`)

func newAtom(raw string) atom {
	if raw == "" {
		return atom{rank: rankEmpty}
	}
	if isDigits(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Overflows int64 only for implausibly long numeric runs;
			// treat as maximally large rather than erroring, since
			// Compare has no error return.
			n = 1<<63 - 1
		}
		return atom{rank: rankNumeric, num: n}
	}
	lower := strings.ToLower(raw)
	switch lower {
	case "dev":
		return atom{rank: rankDev}
	case "post":
		return atom{rank: rankPost}
	case "_":
		return atom{rank: rankUnderscore}
	default:
		return atom{rank: rankAlpha, str: lower}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func compareAtom(a, b atom) int {
	if a.rank != b.rank {
		return cmpInt(int(a.rank), int(b.rank))
	}
	switch a.rank {
	case rankNumeric:
		return cmpInt64(a.num, b.num)
	case rankAlpha:
		return strings.Compare(a.str, b.str)
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// splitEpoch separates a leading "N!" epoch prefix from the rest of the
// version string. A version with no "!" has an implicit epoch of 0.
func splitEpoch(s string) (epoch int64, rest string) {
	if i := strings.IndexByte(s, '!'); i >= 0 {
		n, err := strconv.ParseInt(s[:i], 10, 64)
		if err == nil {
			return n, s[i+1:]
		}
	}
	return 0, s
}

// splitComponents splits the (epoch-stripped) version string on '.' and
// tokenizes each component into alternating runs of digits and
// non-digits.
func splitComponents(s string) [][]atom {
	parts := strings.Split(s, ".")
	comps := make([][]atom, len(parts))
	for i, p := range parts {
		if p == "" {
			comps[i] = []atom{newAtom("")}
			continue
		}
		tokens := tokenRE.FindAllString(p, -1)
		atoms := make([]atom, len(tokens))
		for j, t := range tokens {
			atoms[j] = newAtom(t)
		}
		comps[i] = atoms
	}
	return comps
}

// compareAtoms compares two atom sequences within a single dotted
// component, padding the shorter sequence with empty atoms.
func compareAtoms(a, b []atom) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	empty := atom{rank: rankEmpty}
	for i := 0; i < n; i++ {
		av, bv := empty, empty
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if c := compareAtom(av, bv); c != 0 {
			return c
		}
	}
	return 0
}

// Compare returns -1, 0, or 1 depending on whether version a sorts
// before, the same as, or after version b, using conda's version-order
// rules. Missing trailing components are treated as a single numeric
// zero atom, so "1.0" and "1.0.0" compare equal.
func Compare(a, b string) int {
	epochA, restA := splitEpoch(a)
	epochB, restB := splitEpoch(b)
	if c := cmpInt64(epochA, epochB); c != 0 {
		return c
	}

	compsA := splitComponents(restA)
	compsB := splitComponents(restB)
	n := len(compsA)
	if len(compsB) > n {
		n = len(compsB)
	}
	zeroComp := []atom{{rank: rankNumeric, num: 0}}
	for i := 0; i < n; i++ {
		ca, cb := zeroComp, zeroComp
		if i < len(compsA) {
			ca = compsA[i]
		}
		if i < len(compsB) {
			cb = compsB[i]
		}
		if c := compareAtoms(ca, cb); c != 0 {
			return c
		}
	}
	return 0
}

// Less reports whether a sorts strictly before b.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// Equal reports whether a and b are ordering-equivalent, which is not
// the same as string equality ("1.0" and "1.0.0" are Equal).
func Equal(a, b string) bool { return Compare(a, b) == 0 }

// Max returns the lexically-greatest (by Compare) version in vs. Max
// panics if vs is empty.
func Max(vs []string) string {
	if len(vs) == 0 {
		panic("version.Max: empty slice")
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}
