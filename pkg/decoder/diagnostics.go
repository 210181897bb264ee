package decoder

import (
	"go.uber.org/zap"
)

// Options shared by every decoder.
type Options struct {
	Logger *zap.Logger
	// IgnoreErrors silences per-line and per-frame diagnostics. Failures are
	// still returned and counted.
	IgnoreErrors bool
}

type diagnostics struct {
	log   *zap.Logger
	quiet bool
}

func newDiagnostics(opts Options) diagnostics {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return diagnostics{log: logger, quiet: opts.IgnoreErrors}
}

func (d diagnostics) debug(msg string, fields ...zap.Field) {
	if !d.quiet {
		d.log.Debug(msg, fields...)
	}
}

func (d diagnostics) info(msg string, fields ...zap.Field) {
	if !d.quiet {
		d.log.Info(msg, fields...)
	}
}

func (d diagnostics) warn(msg string, fields ...zap.Field) {
	if !d.quiet {
		d.log.Warn(msg, fields...)
	}
}
