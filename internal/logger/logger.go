// Package logger is the single output path for diagnostic messages, with a
// package prefix and a quiet switch for batch runs.
package logger

import "log"

// Quiet suppresses Info messages; Error is always printed.
var Quiet bool

func Info(format string, args ...any) {
	if Quiet {
		return
	}
	log.Printf("mpcart: "+format, args...)
}

func Error(format string, args ...any) {
	log.Printf("mpcart: error: "+format, args...)
}
