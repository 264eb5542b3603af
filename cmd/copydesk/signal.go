package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// SignalHandler cancels its context on SIGINT or SIGTERM.
type SignalHandler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
}

func NewSignalHandler(ctx context.Context) *SignalHandler {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	return &SignalHandler{
		ctx:     ctx,
		cancel:  cancel,
		sigChan: sigChan,
	}
}

func (s *SignalHandler) Context() context.Context {
	return s.ctx
}

func (s *SignalHandler) Start() {
	go func() {
		select {
		case <-s.sigChan:
			fmt.Fprintln(os.Stderr, "\nReceived shutdown signal...")
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
}

// Stop releases the signal subscription and the watcher goroutine.
func (s *SignalHandler) Stop() {
	signal.Stop(s.sigChan)
	s.cancel()
}
