package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is a single gitignore-style pattern.
type IgnorePattern struct {
	raw      string
	negate   bool // leading !
	dirOnly  bool // trailing /
	anchored bool // leading / or a slash inside the pattern
	segments []string
}

// ParseIgnorePattern parses one line of a .decompignore file.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{raw: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.anchored = true
		pattern = pattern[1:]
	}
	if strings.Contains(pattern, "/") {
		p.anchored = true
	}

	p.segments = strings.Split(strings.ToLower(pattern), "/")
	return p
}

// String returns the pattern as written.
func (p IgnorePattern) String() string {
	return p.raw
}

// IsNegation reports whether the pattern re-includes what it matches.
func (p IgnorePattern) IsNegation() bool {
	return p.negate
}

// Match reports whether the slash-separated file path, relative to the
// directory holding the pattern, is matched. A path under a matched
// directory matches too.
func (p IgnorePattern) Match(rel string) bool {
	return p.match(rel, false)
}

// MatchDir is Match for a directory path.
func (p IgnorePattern) MatchDir(rel string) bool {
	return p.match(rel, true)
}

func (p IgnorePattern) match(rel string, isDir bool) bool {
	segs := strings.Split(strings.ToLower(strings.Trim(rel, "/")), "/")

	last := len(segs)
	if p.dirOnly && !isDir {
		// the file itself can't satisfy a directory pattern
		last--
	}

	for end := 1; end <= last; end++ {
		if p.anchored {
			if matchSegments(p.segments, segs[:end]) {
				return true
			}
			continue
		}
		for start := 0; start < end; start++ {
			if matchSegments(p.segments, segs[start:end]) {
				return true
			}
		}
	}
	return false
}

// matchSegments matches pattern segments against path segments. "**"
// spans any number of segments, including none.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if ok, err := path.Match(pattern[0], segs[0]); err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}

// ignoreSet is the ordered list of patterns in effect for a walk. Later
// patterns override earlier ones.
type ignoreSet []scopedPattern

type scopedPattern struct {
	base string // slash-separated directory the pattern was read from, "" for root
	IgnorePattern
}

func (s ignoreSet) ignored(rel string, isDir bool) bool {
	ignored := false
	for _, sp := range s {
		sub := rel
		if sp.base != "" {
			if !strings.HasPrefix(rel, sp.base+"/") {
				continue
			}
			sub = strings.TrimPrefix(rel, sp.base+"/")
		}
		if sp.match(sub, isDir) {
			ignored = !sp.negate
		}
	}
	return ignored
}
