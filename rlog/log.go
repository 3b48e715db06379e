// Package rlog is the process-global leveled logger shared by every package
// in this module, adapted from clusterrpc's log package. It exists so that
// invocation retries, liveness probes, and transport errors all end up on
// the same timeline with a consistent format, instead of each package
// rolling its own *log.Logger.
package rlog

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"time"
)

type Level int

const (
	// LOGLEVEL_NONE logs absolutely nothing.
	LOGLEVEL_NONE Level = iota
	// LOGLEVEL_ERRORS logs situations that are not expected to happen and
	// are difficult to handle (e.g. abandoning a call registry entry).
	LOGLEVEL_ERRORS
	// LOGLEVEL_WARNINGS logs non-critical situations that might happen, but
	// shouldn't (e.g. a retryable dispatch failure, a stuck-call warning).
	LOGLEVEL_WARNINGS
	// LOGLEVEL_INFO logs situations that are expected, but important for
	// the operation (e.g. a liveness probe being issued).
	LOGLEVEL_INFO
	// LOGLEVEL_DEBUG logs everything, including individual dispatch/retry
	// steps of an Invocation Future.
	LOGLEVEL_DEBUG
)

var levelStrings = []string{"[NON]", "[ERR]", "[WRN]", "[INF]", "[DBG]"}

const loggerFlags = log.LstdFlags | log.Lmicroseconds

var logger *log.Logger
var level Level

func init() {
	logger = log.New(os.Stderr, "distgrid ", loggerFlags)
	level = LOGLEVEL_WARNINGS
	rand.Seed(time.Now().UnixNano())
}

// SetOutput points the global logger at a different writer (tests
// typically redirect it to a buffer).
func SetOutput(w io.Writer) {
	logger = log.New(w, logger.Prefix(), logger.Flags())
}

// SetLevel sets the global log level.
func SetLevel(l Level) {
	level = l
}

// Enabled reports whether a message at level l would actually be logged,
// so callers can skip building an expensive message string.
func Enabled(l Level) bool {
	return level >= l
}

func Log(l Level, what ...interface{}) {
	if l <= level {
		logger.Printf("%s %s", levelStrings[l], fmt.Sprintln(what...))
	}
}

func Errorf(format string, args ...interface{}) {
	if level >= LOGLEVEL_ERRORS {
		logger.Printf("%s %s", levelStrings[LOGLEVEL_ERRORS], fmt.Sprintf(format, args...))
	}
}

func Warnf(format string, args ...interface{}) {
	if level >= LOGLEVEL_WARNINGS {
		logger.Printf("%s %s", levelStrings[LOGLEVEL_WARNINGS], fmt.Sprintf(format, args...))
	}
}

func Infof(format string, args ...interface{}) {
	if level >= LOGLEVEL_INFO {
		logger.Printf("%s %s", levelStrings[LOGLEVEL_INFO], fmt.Sprintf(format, args...))
	}
}

func Debugf(format string, args ...interface{}) {
	if level >= LOGLEVEL_DEBUG {
		logger.Printf("%s %s", levelStrings[LOGLEVEL_DEBUG], fmt.Sprintf(format, args...))
	}
}

// CallToken returns a short random alphanumeric token used to correlate the
// several log lines produced by one Invocation Future's attempts, the way
// clusterrpc tags related log lines for a single RPC.
func CallToken() string {
	buf := make([]byte, 6)
	for i := range buf {
		buf[i] = byte(65 + (rand.Int() % 26))
	}
	return string(buf)
}
