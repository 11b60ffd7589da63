package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Verbosity controls how much the engine logs.
type Verbosity string

const (
	VerbosityQuiet   Verbosity = "quiet"
	VerbosityNormal  Verbosity = "normal"
	VerbosityVerbose Verbosity = "verbose"
	VerbosityDebug   Verbosity = "debug"
)

var verbosityLevels = map[Verbosity]logrus.Level{
	VerbosityQuiet:   logrus.ErrorLevel,
	VerbosityNormal:  logrus.WarnLevel,
	VerbosityVerbose: logrus.InfoLevel,
	VerbosityDebug:   logrus.DebugLevel,
}

// ParseVerbosity parses "quiet", "normal", "verbose" or "debug".
func ParseVerbosity(s string) (Verbosity, error) {
	v := Verbosity(s)
	if _, ok := verbosityLevels[v]; !ok {
		return "", fmt.Errorf("unknown verbosity %q", s)
	}

	return v, nil
}

// Level maps v to a logrus level. Unknown values map to warn.
func (v Verbosity) Level() logrus.Level {
	if lvl, ok := verbosityLevels[v]; ok {
		return lvl
	}

	return logrus.WarnLevel
}

// Shift moves v by n steps towards debug (n > 0) or quiet (n < 0), clamped.
func (v Verbosity) Shift(n int) Verbosity {
	order := []Verbosity{VerbosityQuiet, VerbosityNormal, VerbosityVerbose, VerbosityDebug}

	idx := 1
	for i, o := range order {
		if o == v {
			idx = i
		}
	}

	idx = max(0, min(len(order)-1, idx+n))

	return order[idx]
}
