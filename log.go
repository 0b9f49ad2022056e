package lochsemu

import "go.uber.org/zap"

// NewLogger builds the structured logger every long-lived component takes
// a *zap.SugaredLogger from. debug selects a human-readable development
// encoder (console, colorized level, caller); its absence selects the
// production JSON encoder suited to piping into log aggregation.
func NewLogger(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// NopLogger returns a logger that discards everything, for tests and for
// any constructor path that doesn't want to force callers to wire one up.
func NopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
