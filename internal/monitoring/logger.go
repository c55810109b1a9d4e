// Package monitoring carries the process-wide diagnostic loggers. Logf is
// the normal operational channel; Debugf is a second, noisier channel for
// per-round detail that stays silent unless enabled.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs verbose per-round diagnostics. It is a no-op until
// SetDebug(true) routes it through Logf.
var Debugf func(format string, v ...interface{}) = discard

func discard(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug routes Debugf through the package logger when on, or back to a
// no-op when off. Debugf reads Logf at call time, so SetLogger keeps
// working after SetDebug.
func SetDebug(on bool) {
	if on {
		Debugf = func(format string, v ...interface{}) { Logf(format, v...) }
		return
	}
	Debugf = discard
}
