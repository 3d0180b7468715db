package system

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

var exit = os.Exit

// GracefulContext returns a context that is canceled on the first interrupt or
// SIGTERM, letting a running scan stop between two files. A second signal exits
// immediately. stop releases the signal handler.
func GracefulContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChannel := make(chan os.Signal, 2)
	signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigChannel:
		case <-done:
			return
		}
		log.Info().Msg("Received interrupt signal, shutting down gracefully...")
		cancel()

		select {
		case <-sigChannel:
			log.Warn().Msg("Received second interrupt signal, exiting")
			exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigChannel)
		cancel()
		select {
		case <-done:
		default:
			close(done)
		}
	}
}
