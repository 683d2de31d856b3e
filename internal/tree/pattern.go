package tree

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ossia-go/ossia/pkg/lrucache"
)

// segmentCache memoizes compiled pattern segments, so a protocol that
// receives pattern-addressed writes in bursts does not recompile the
// same glob on every message.
var segmentCache = lrucache.New(1 << 20)

// ErrInvalidPattern is returned for a pattern violating the address
// grammar (empty segments except the any-depth marker, trailing slash,
// ...).
type ErrInvalidPattern struct{ Pattern string }

func (e ErrInvalidPattern) Error() string {
	return fmt.Sprintf("tree: invalid address pattern %q", e.Pattern)
}

// anyDepth marks a "//" any-depth descent segment.
const anyDepth = ""

// splitPattern validates and tokenizes a pattern into segments. A segment
// equal to anyDepth denotes "//" (backtracking any-depth descent).
func splitPattern(pattern string) ([]string, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, ErrInvalidPattern{pattern}
	}
	if pattern == "/" {
		return nil, nil
	}
	if strings.HasSuffix(pattern, "/") {
		return nil, ErrInvalidPattern{pattern}
	}

	raw := strings.Split(pattern[1:], "/")
	segs := make([]string, 0, len(raw))
	for i, s := range raw {
		if s == "" {
			if i == 0 {
				// "//" right after the root: valid any-depth marker.
				segs = append(segs, anyDepth)
				continue
			}
			if segs[len(segs)-1] == anyDepth {
				// collapse runs of "//" into a single marker
				continue
			}
			segs = append(segs, anyDepth)
			continue
		}
		segs = append(segs, s)
	}
	return segs, nil
}

// FindNode implements exact-path lookup. Returns nil if
// no such node exists.
func FindNode(root *Node, path string) *Node {
	if path == "/" {
		return root
	}
	if path == "" || path[0] != '/' {
		return nil
	}
	cur := root
	for _, seg := range strings.Split(path[1:], "/") {
		if seg == "" {
			return nil
		}
		var next *Node
		for _, c := range cur.ChildrenCopy() {
			if c.Name() == seg {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// FindNodes implements pattern-based lookup: `*`, `?`,
// `[set]`, `[!set]`, `{alt,alt}` alternation, and `//` any-depth descent
// with backtracking. Matching is greedy left-to-right; case-sensitive.
func FindNodes(root *Node, pattern string) ([]*Node, error) {
	segs, err := splitPattern(pattern)
	if err != nil {
		return nil, err
	}
	if segs == nil {
		return []*Node{root}, nil
	}
	return matchSegments(root, segs)
}

func matchSegments(n *Node, segs []string) ([]*Node, error) {
	if len(segs) == 0 {
		return []*Node{n}, nil
	}

	seg := segs[0]
	if seg == anyDepth {
		return matchAnyDepth(n, segs[1:])
	}

	matcher, err := compileSegment(seg)
	if err != nil {
		return nil, err
	}

	var out []*Node
	for _, c := range n.ChildrenCopy() {
		if matcher.MatchString(c.Name()) {
			sub, err := matchSegments(c, segs[1:])
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

// matchAnyDepth backtracks: the rest of the pattern may match at this
// node's own depth, or at any descendant depth.
func matchAnyDepth(n *Node, rest []string) ([]*Node, error) {
	out, err := matchSegments(n, rest)
	if err != nil {
		return nil, err
	}
	for _, c := range n.ChildrenCopy() {
		sub, err := matchAnyDepth(c, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// compileSegment translates one OSC address-pattern segment into a
// regexp, caching the result. Supports `*`, `?`, `[set]`/`[!set]` ranges,
// and `{alt,alt}` alternation (expanded as a regex group, not a cartesian
// product with siblings -- the cartesian expansion happens naturally by
// virtue of the regex alternation matching each sibling name).
func compileSegment(seg string) (*regexp.Regexp, error) {
	if cached := segmentCache.Get(seg, nil); cached != nil {
		if ce, ok := cached.(compileError); ok {
			return nil, ErrInvalidPattern{seg + " (" + ce.re + ")"}
		}
		return cached.(*regexp.Regexp), nil
	}

	var b strings.Builder
	b.WriteByte('^')
	runes := []rune(seg)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				return nil, ErrInvalidPattern{seg}
			}
			inner := string(runes[i+1 : j])
			b.WriteByte('[')
			if strings.HasPrefix(inner, "!") {
				b.WriteByte('^')
				inner = inner[1:]
			}
			b.WriteString(inner)
			b.WriteByte(']')
			i = j
		case '{':
			j := i + 1
			for j < len(runes) && runes[j] != '}' {
				j++
			}
			if j >= len(runes) {
				return nil, ErrInvalidPattern{seg}
			}
			alts := strings.Split(string(runes[i+1:j]), ",")
			for k, a := range alts {
				alts[k] = regexp.QuoteMeta(a)
			}
			b.WriteString("(?:" + strings.Join(alts, "|") + ")")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')

	cached := segmentCache.Get(seg, func() (interface{}, time.Duration, int) {
		re, err := regexp.Compile(b.String())
		if err != nil {
			// compileError is stored so a malformed pattern is not
			// recompiled (and re-erred) on every call.
			return compileError{b.String()}, time.Hour, len(seg)
		}
		return re, time.Hour, len(seg)
	})

	if ce, ok := cached.(compileError); ok {
		return nil, ErrInvalidPattern{seg + " (" + ce.re + ")"}
	}
	return cached.(*regexp.Regexp), nil
}

type compileError struct{ re string }
