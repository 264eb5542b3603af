package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/harunnryd/copydesk/internal/logger"
)

// SafeGo runs fn in a goroutine with panic recovery. onPanic receives the
// recovered value converted to an error.
func SafeGo(ctx context.Context, name string, fn func(ctx context.Context), onPanic func(err error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				attrs := append([]any{"task", name, "panic", r, "stack", string(debug.Stack())}, logger.Attrs(ctx)...)
				slog.Error("Panic recovered", attrs...)
				if onPanic != nil {
					onPanic(fmt.Errorf("%s panicked: %v", name, r))
				}
			}
		}()
		fn(ctx)
	}()
}
