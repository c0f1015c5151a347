package emu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LevelTrace is the slog level of per-instruction trace records.
const LevelTrace slog.Level = slog.LevelInfo + 1

// DebugEnv names the environment variable that enables instruction tracing
// on stderr.
const DebugEnv = "KPLSIM_ISA_DEBUG"

// NewLogger returns the default emulator logger: a text handler on stderr
// when DebugEnv is set, otherwise a logger that drops every record.
func NewLogger() *slog.Logger {
	if os.Getenv(DebugEnv) == "" {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.LevelError + 1,
		}))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: LevelTrace,
	}))
}

func (w *Warp) tracing() bool {
	return w.logger.Enabled(context.Background(), LevelTrace)
}

func (w *Warp) trace(msg string, args ...any) {
	if !w.tracing() {
		return
	}

	args = append([]any{"PC", hex(w.pc)}, args...)
	w.logger.Log(context.Background(), LevelTrace, msg, args...)
}

type hex uint32

func (h hex) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("0x%x", uint32(h)))
}
