package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore creates the console core, teed with an OTEL bridge core when a
// provider is supplied and OTEL output is enabled.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
	}

	out := os.Stdout
	if cfg.Output.Stderr {
		out = os.Stderr
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), cfg.Level)

	if cfg.Output.OTEL && otelProvider != nil {
		otelCore := otelzap.NewCore("ragd",
			otelzap.WithLoggerProvider(otelProvider),
		)
		core = zapcore.NewTee(core, otelCore)
	}

	return core, nil
}
