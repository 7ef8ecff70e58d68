// internal/logging/otel.go
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
)

// newDualCore creates the stdout logging core, redacting sensitive fields
// before encoding and wrapping with sampling. OTEL trace/span correlation
// is carried via ContextFields rather than a separate log-export path,
// since this engine runs embedded with no collector endpoint to ship to.
func newDualCore(cfg *Config) (zapcore.Core, error) {
	if !cfg.Output.Stdout {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	baseEncoder := newEncoder(cfg.Format)
	encoder, err := NewRedactingEncoder(baseEncoder, cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
	}
	writer := zapcore.AddSync(os.Stdout)
	core := zapcore.NewCore(encoder, writer, cfg.Level)

	return newSampledCore(core, cfg.Sampling), nil
}
