package statsdproxy

import "hash/crc32"

// Fingerprint computes a short, collision-tolerant identifier for a
// timeseries: a metric name plus its tag set. Two different timeseries
// colliding onto the same fingerprint only causes a harmless aggregation
// merge or a minor cardinality under-count (see spec §3, §9) -- CRC32 is
// deliberately "good enough" rather than cryptographically unique.
func Fingerprint(name []byte, tags Tags) uint32 {
	h := crc32.NewIEEE()
	h.Write(name)
	for _, tag := range tags.SortedUnique() {
		h.Write(separatorByte)
		h.Write([]byte(tag))
	}
	return h.Sum32()
}

var separatorByte = []byte{0}
