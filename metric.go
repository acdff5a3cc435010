// Package statsdproxy holds the DogStatsD line parser and the handful of
// byte-level types (tags, fingerprints, name matchers) shared by every
// middleware in pkg/pipeline. It never fails to parse: a line that does
// not look like statsd is simply marked opaque and forwarded untouched.
package statsdproxy

import (
	"bytes"
	"strconv"
	"strings"
)

// MetricType identifies the statsd/DogStatsD metric kind a line carries.
type MetricType byte

const (
	Unknown MetricType = iota
	Counter
	Gauge
	Timer
	Histogram
	Set
	Distribution
)

func (t MetricType) String() string {
	switch t {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Timer:
		return "timer"
	case Histogram:
		return "histogram"
	case Set:
		return "set"
	case Distribution:
		return "distribution"
	}
	return "unknown"
}

var typeTokens = map[string]MetricType{
	"c":  Counter,
	"g":  Gauge,
	"ms": Timer,
	"h":  Histogram,
	"s":  Set,
	"d":  Distribution,
}

// MetricView is a borrowed or owned view over exactly one statsd line.
// Field offsets are computed once, at Parse time. If the line could not be
// fully understood, the view is "opaque": every accessor returns ok=false
// and mutators are no-ops, so the line is guaranteed to be forwarded
// byte-for-byte.
type MetricView struct {
	raw    []byte
	opaque bool

	nameStart, nameEnd int
	valueStart, valueEnd int
	typeStart, typeEnd int
	mtype MetricType

	hasSampleRate              bool
	sampleRateStart, sampleRateEnd int

	hasTags          bool
	tagsStart, tagsEnd int // span of bytes strictly between "|#" and the next "|" (or EOL)
}

// Parse never fails. Lines that do not match the recognized DogStatsD
// grammar (spec §4.A) come back as an opaque view whose only meaningful
// operation is RawBytes.
func Parse(line []byte) *MetricView {
	m := &MetricView{raw: line}
	if !m.scan() {
		m.opaque = true
	}
	return m
}

func (m *MetricView) scan() bool {
	raw := m.raw
	colon := bytes.IndexByte(raw, ':')
	if colon <= 0 {
		return false
	}
	m.nameStart, m.nameEnd = 0, colon

	firstPipe := bytes.IndexByte(raw[colon+1:], '|')
	if firstPipe < 0 {
		return false
	}
	m.valueStart = colon + 1
	m.valueEnd = m.valueStart + firstPipe
	if !isNumeric(raw[m.valueStart:m.valueEnd]) {
		return false
	}

	m.typeStart = m.valueEnd + 1
	typeEnd := m.typeStart
	for typeEnd < len(raw) && raw[typeEnd] != '|' {
		typeEnd++
	}
	m.typeEnd = typeEnd
	mtype, ok := typeTokens[string(raw[m.typeStart:m.typeEnd])]
	if !ok {
		return false
	}
	m.mtype = mtype

	pos := m.typeEnd
	for pos < len(raw) && raw[pos] == '|' {
		segStart := pos + 1
		if segStart >= len(raw) {
			break
		}
		segEnd := segStart + 1
		for segEnd < len(raw) && raw[segEnd] != '|' {
			segEnd++
		}
		switch raw[segStart] {
		case '@':
			if !m.hasSampleRate {
				m.hasSampleRate = true
				m.sampleRateStart, m.sampleRateEnd = segStart+1, segEnd
			}
		case '#':
			if !m.hasTags {
				m.hasTags = true
				m.tagsStart, m.tagsEnd = segStart+1, segEnd
			}
		}
		pos = segEnd
	}
	return true
}

// isNumeric is the "ASCII numeric" test from spec §4.A: optional sign,
// digits, optional ".", optional digits, optional exponent.
func isNumeric(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	i := 0
	if b[i] == '+' || b[i] == '-' {
		i++
	}
	sawDigit := false
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
		sawDigit = true
	}
	if i < len(b) && b[i] == '.' {
		i++
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			i++
			sawDigit = true
		}
	}
	if !sawDigit {
		return false
	}
	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		i++
		if i < len(b) && (b[i] == '+' || b[i] == '-') {
			i++
		}
		sawExpDigit := false
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			i++
			sawExpDigit = true
		}
		if !sawExpDigit {
			return false
		}
	}
	return i == len(b)
}

// Opaque reports whether the line failed to parse and must be treated as
// an inert byte blob by every middleware.
func (m *MetricView) Opaque() bool { return m.opaque }

func (m *MetricView) Name() ([]byte, bool) {
	if m.opaque {
		return nil, false
	}
	return m.raw[m.nameStart:m.nameEnd], true
}

func (m *MetricView) Type() (MetricType, bool) {
	if m.opaque {
		return Unknown, false
	}
	return m.mtype, true
}

func (m *MetricView) Value() ([]byte, bool) {
	if m.opaque {
		return nil, false
	}
	return m.raw[m.valueStart:m.valueEnd], true
}

// ValueFloat parses Value as a float64. Only meaningful for counters and
// gauges; callers should check Type first.
func (m *MetricView) ValueFloat() (float64, bool) {
	v, ok := m.Value()
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (m *MetricView) SampleRate() (float64, bool) {
	if m.opaque || !m.hasSampleRate {
		return 1, false
	}
	f, err := strconv.ParseFloat(string(m.raw[m.sampleRateStart:m.sampleRateEnd]), 64)
	if err != nil {
		return 1, false
	}
	return f, true
}

// Tags splits the "|#" segment on "," into individual "key[:value]" tags.
// Returns ok=false when the view is opaque, carries no tag segment at all,
// or carries an empty one (a bare trailing "|#" in the parsed line).
func (m *MetricView) Tags() (Tags, bool) {
	if m.opaque || !m.hasTags {
		return nil, false
	}
	seg := m.raw[m.tagsStart:m.tagsEnd]
	if len(seg) == 0 {
		return nil, false
	}
	parts := bytes.Split(seg, []byte(","))
	tags := make(Tags, len(parts))
	for i, p := range parts {
		tags[i] = string(p)
	}
	return tags, true
}

// RawBytes returns the metric's current on-wire representation.
func (m *MetricView) RawBytes() []byte { return m.raw }

// reparse rebuilds field offsets after raw has been replaced. The view's
// opaqueness can never flip from a mutator: mutators only run on views that
// already parsed successfully, and they never introduce new separators
// that would break the next scan.
func (m *MetricView) reparse(raw []byte) {
	*m = *Parse(raw)
}

// RemoveTags drops every tag whose key matches predicate, repacking the
// "|#" segment (or dropping it entirely if it becomes empty), leaving
// every other byte of the line untouched.
func (m *MetricView) RemoveTags(predicate func(key string) bool) {
	m.rewriteTags(func(key string) bool { return !predicate(key) })
}

// RetainTags keeps only tags whose key matches predicate.
func (m *MetricView) RetainTags(predicate func(key string) bool) {
	m.rewriteTags(predicate)
}

// rewriteTags keeps tags for which keep(key) is true.
func (m *MetricView) rewriteTags(keep func(key string) bool) {
	if m.opaque || !m.hasTags {
		return
	}
	tags, _ := m.Tags()
	kept := tags[:0:0]
	for _, tag := range tags {
		if keep(Key(tag)) {
			kept = append(kept, tag)
		}
	}
	m.setTagSegment(kept)
}

// AddTags appends one or more already-formatted "key[:value]" tags to the
// existing tag set, creating the "|#" segment if it is absent. Not
// idempotent: calling it twice duplicates the tags (spec §4.H).
func (m *MetricView) AddTags(tags ...string) {
	if m.opaque || len(tags) == 0 {
		return
	}
	existing, _ := m.Tags()
	m.setTagSegment(append(append(Tags{}, existing...), tags...))
}

// RemoveSampleRate drops the "|@<rate>" segment entirely, leaving every
// other byte of the line untouched. The aggregator uses this to fold
// same-series counters sampled at different rates into one bucket: the
// emitted metric never carries a sample rate (spec §4.E).
func (m *MetricView) RemoveSampleRate() {
	if m.opaque || !m.hasSampleRate {
		return
	}
	out := append([]byte{}, m.raw[:m.sampleRateStart-2]...) // drop the "|@" prefix too
	out = append(out, m.raw[m.sampleRateEnd:]...)
	m.reparse(out)
}

// setTagSegment replaces the "|#" segment with tags, or removes the segment
// (including its leading "|#") if tags is empty.
func (m *MetricView) setTagSegment(tags Tags) {
	var out []byte
	if len(tags) == 0 {
		if !m.hasTags {
			return
		}
		out = append(out, m.raw[:m.tagsStart-2]...) // drop the "|#" prefix too
		out = append(out, m.raw[m.tagsEnd:]...)
	} else {
		joined := strings.Join(tags, ",")
		if m.hasTags {
			out = append(out, m.raw[:m.tagsStart]...)
			out = append(out, joined...)
			out = append(out, m.raw[m.tagsEnd:]...)
		} else {
			out = append(out, m.raw...)
			out = append(out, "|#"...)
			out = append(out, joined...)
		}
	}
	m.reparse(out)
}

// SetValue replaces the value span in place. Only meaningful for counters
// and gauges; the metric type is not checked.
func (m *MetricView) SetValue(value []byte) {
	if m.opaque {
		return
	}
	out := make([]byte, 0, len(m.raw)-(m.valueEnd-m.valueStart)+len(value))
	out = append(out, m.raw[:m.valueStart]...)
	out = append(out, value...)
	out = append(out, m.raw[m.valueEnd:]...)
	m.reparse(out)
}

// Clone returns an independent copy of the view, safe to retain past the
// lifetime of the original datagram buffer.
func (m *MetricView) Clone() *MetricView {
	raw := make([]byte, len(m.raw))
	copy(raw, m.raw)
	cp := *m
	cp.raw = raw
	return &cp
}
