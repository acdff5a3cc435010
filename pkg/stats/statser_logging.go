package stats

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statsdproxy/statsdproxy"
)

// LoggingStatser is a Statser which emits every metric as a structured log
// line, for deployments without a metrics backend.
type LoggingStatser struct {
	flushNotifier

	tags   statsdproxy.Tags
	logger logrus.FieldLogger
}

// NewLoggingStatser creates a new Statser which sends metrics to the
// supplied logger.
func NewLoggingStatser(tags statsdproxy.Tags, logger logrus.FieldLogger) Statser {
	return &LoggingStatser{
		tags:   tags,
		logger: logger,
	}
}

func (ls *LoggingStatser) Gauge(name string, value float64, tags statsdproxy.Tags) {
	ls.logger.WithFields(logrus.Fields{
		"name":  name,
		"tags":  append(append(statsdproxy.Tags{}, ls.tags...), tags...),
		"value": value,
	}).Infof("gauge")
}

func (ls *LoggingStatser) Count(name string, amount float64, tags statsdproxy.Tags) {
	ls.logger.WithFields(logrus.Fields{
		"name":   name,
		"tags":   append(append(statsdproxy.Tags{}, ls.tags...), tags...),
		"amount": amount,
	}).Infof("count")
}

func (ls *LoggingStatser) Increment(name string, tags statsdproxy.Tags) {
	ls.logger.WithFields(logrus.Fields{
		"name": name,
		"tags": append(append(statsdproxy.Tags{}, ls.tags...), tags...),
	}).Infof("increment")
}

func (ls *LoggingStatser) TimingMS(name string, ms float64, tags statsdproxy.Tags) {
	ls.logger.WithFields(logrus.Fields{
		"name": name,
		"tags": append(append(statsdproxy.Tags{}, ls.tags...), tags...),
		"ms":   ms,
	}).Infof("timing")
}

func (ls *LoggingStatser) TimingDuration(name string, d time.Duration, tags statsdproxy.Tags) {
	ls.TimingMS(name, float64(d)/float64(time.Millisecond), tags)
}

func (ls *LoggingStatser) NewTimer(name string, tags statsdproxy.Tags) *Timer {
	return newTimer(ls, name, tags)
}

func (ls *LoggingStatser) WithTags(tags statsdproxy.Tags) Statser {
	return NewTaggedStatser(ls, tags)
}
