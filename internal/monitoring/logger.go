// Package monitoring provides the package-level diagnostic logger shared by
// the filter core and the offline tools.
package monitoring

import "log"

// Logf is the diagnostic logger. It defaults to log.Printf; replace it with
// SetLogger to redirect filter diagnostics (skipped updates, simulation
// progress) or to mute them in tests.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
