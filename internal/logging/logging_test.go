package logging

import (
	"testing"

	"github.com/LuisEduardoPedra/checkoutPix/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, esperava %s", in, got, want)
		}
	}
}

func TestNewInstallsGlobalLogger(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "console"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer zap.ReplaceGlobals(zap.NewNop())
	if zap.L() != logger {
		t.Error("logger global não foi substituído")
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("nível info não deveria estar habilitado")
	}
}
