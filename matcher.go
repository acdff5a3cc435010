package statsdproxy

import (
	"regexp"
	"strings"
)

// StringMatch is a single match rule: an exact match, a prefix/suffix match
// (trailing/leading "*"), or a "regex:" prefixed regular expression. A
// leading "!" inverts the result.
type StringMatch struct {
	test        string
	invertMatch bool
	prefixMatch bool
	suffixMatch bool
	isRegex     bool
	regex       *regexp.Regexp
}

type StringMatchList []StringMatch

func NewStringMatch(s string) StringMatch {
	invert := false
	if strings.HasPrefix(s, "!") {
		invert = true
		s = s[1:]
	}

	regex := false
	var compiledRegex *regexp.Regexp
	if strings.HasPrefix(s, "regex:") {
		regex = true
		s = s[6:]
		compiledRegex, _ = regexp.Compile(s)
	}

	prefix := false
	suffix := false
	if !regex {
		if strings.HasSuffix(s, "*") {
			prefix = true
			s = s[0 : len(s)-1]
		} else if strings.HasPrefix(s, "*") {
			suffix = true
			s = s[1:]
		}
	}
	return StringMatch{
		test:        s,
		invertMatch: invert,
		prefixMatch: prefix,
		suffixMatch: suffix,
		isRegex:     regex,
		regex:       compiledRegex,
	}
}

// Match indicates if the provided string matches the criteria for this StringMatch.
func (sm StringMatch) Match(s string) bool {
	if sm.isRegex {
		return sm.regex.MatchString(s) != sm.invertMatch
	}
	if sm.prefixMatch {
		return strings.HasPrefix(s, sm.test) != sm.invertMatch
	}
	if sm.suffixMatch {
		return strings.HasSuffix(s, sm.test) != sm.invertMatch
	}
	return (s == sm.test) != sm.invertMatch
}

// MatchAny indicates if s matches anything in the list, returns false if the list is empty.
func (sml StringMatchList) MatchAny(s string) bool {
	for _, sm := range sml {
		if sm.Match(s) {
			return true
		}
	}
	return false
}

// PrefixSet and SuffixSet are byte-exact, case-sensitive prefix/suffix matchers used by
// deny-tag/allow-tag, per spec: no regex, no inversion, just plain string prefix/suffix.
type PrefixSet []string

func (ps PrefixSet) MatchAny(s string) bool {
	for _, p := range ps {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

type SuffixSet []string

func (ss SuffixSet) MatchAny(s string) bool {
	for _, suf := range ss {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
