package pipeline

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/sirupsen/logrus"
)

// newPipelineLogger returns the package-level logger used by middlewares
// for drop/overload/parse-failure events. Kept as a function (not a bare
// var) so callers reviewing a stack trace can set a breakpoint on it.
func newPipelineLogger() logrus.FieldLogger {
	return logrus.StandardLogger()
}

// overloadWarnLimiter rate-limits the "dropping metric after exhausting
// retries" warning so a persistently-overloaded downstream can't flood the
// log with one line per dropped metric.
var overloadWarnLimiter = rate.NewLimiter(rate.Every(time.Second), 1)
