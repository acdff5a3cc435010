package statsdproxy

import "sort"

// Tags is a list of "key:value" or bare "key" tag strings, as they appear
// (minus the leading "|#") in a DogStatsD line.
type Tags []string

// SortedUnique returns a new Tags, sorted and with duplicates removed.
// Used to build the canonical form a fingerprint is computed from.
func (t Tags) SortedUnique() Tags {
	if len(t) == 0 {
		return nil
	}
	cp := make(Tags, len(t))
	copy(cp, t)
	sort.Strings(cp)
	out := cp[:1]
	for _, tag := range cp[1:] {
		if tag != out[len(out)-1] {
			out = append(out, tag)
		}
	}
	return out
}

// Key returns the portion of a tag before the first ":", which is the whole
// tag if it has no value.
func Key(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ':' {
			return tag[:i]
		}
	}
	return tag
}
