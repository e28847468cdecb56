package datamodel

import (
	"fmt"
	"strconv"
	"strings"
)

// Root is the mandatory prefix for every path in the tree (spec.md §4.1).
const Root = "/workflow"

// segKind distinguishes the three segment forms the grammar allows:
// `/field`, `[index]`, `.field`.
type segKind int

const (
	segField segKind = iota
	segIndex
)

// segment is one step of a parsed path.
type segment struct {
	kind  segKind
	field string
	index int
}

// Path is a parsed path expression, grammar:
//
//	/workflow ( "/" segment | "[" index "]" | "." field )*
//
// Segments and fields are non-empty identifiers (letters, digits, `_`, `-`).
type Path struct {
	segments []segment
	raw      string
}

// String returns the original path text.
func (p Path) String() string { return p.raw }

// Segments exposes the parsed steps for callers that need to walk them
// manually (the validator's dependency-prefix check, for instance).
func (p Path) Segments() []segment { return p.segments }

// IsPrefixOf reports whether p is a prefix of other — p's segments appear,
// in order, at the start of other's segments. Used by the validator to
// check that a reference path is rooted at some earlier operation's
// outputPath (spec.md §8: "J's outputPath is a prefix of the reference
// path, or equal").
func (p Path) IsPrefixOf(other Path) bool {
	if len(p.segments) > len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		o := other.segments[i]
		if s.kind != o.kind || s.field != o.field || s.index != o.index {
			return false
		}
	}
	return true
}

// isIdentChar reports whether r is valid inside a field/segment identifier.
func isIdentChar(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// ParsePath parses a path expression. It returns an error if raw does not
// start with Root or contains a malformed segment.
func ParsePath(raw string) (Path, error) {
	if !strings.HasPrefix(raw, Root) {
		return Path{}, fmt.Errorf("path %q must start with %s", raw, Root)
	}
	rest := raw[len(Root):]
	p := Path{raw: raw}

	i := 0
	for i < len(rest) {
		switch rest[i] {
		case '/':
			j := i + 1
			for j < len(rest) && isIdentChar(rune(rest[j])) {
				j++
			}
			if j == i+1 {
				return Path{}, fmt.Errorf("path %q: empty segment after '/'", raw)
			}
			p.segments = append(p.segments, segment{kind: segField, field: rest[i+1 : j]})
			i = j
		case '.':
			j := i + 1
			for j < len(rest) && isIdentChar(rune(rest[j])) {
				j++
			}
			if j == i+1 {
				return Path{}, fmt.Errorf("path %q: empty field after '.'", raw)
			}
			p.segments = append(p.segments, segment{kind: segField, field: rest[i+1 : j]})
			i = j
		case '[':
			j := strings.IndexByte(rest[i:], ']')
			if j < 0 {
				return Path{}, fmt.Errorf("path %q: unterminated '['", raw)
			}
			j += i
			numStr := rest[i+1 : j]
			idx, err := strconv.Atoi(numStr)
			if err != nil || idx < 0 {
				return Path{}, fmt.Errorf("path %q: invalid array index %q", raw, numStr)
			}
			p.segments = append(p.segments, segment{kind: segIndex, index: idx})
			i = j + 1
		default:
			return Path{}, fmt.Errorf("path %q: unexpected character %q at offset %d", raw, rest[i], i)
		}
	}
	return p, nil
}

// MustParsePath parses raw and panics on error. Reserved for tests and
// constants; production code should use ParsePath and handle the error.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// LooksLikePath reports whether s could be a path expression (starts with
// Root) without fully validating the grammar — used by the resolver to
// decide whether a bare string argument should be treated as a reference.
func LooksLikePath(s string) bool {
	return strings.HasPrefix(s, Root)
}
