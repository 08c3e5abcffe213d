// Command stubserver runs the in-memory chat backend used for local
// development: the REST API, the websocket endpoint, and a seeded set of
// users and rooms to chat with.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/santipan2003/palmtagram-chatsync/internal/log"
	"github.com/santipan2003/palmtagram-chatsync/internal/proto"
	"github.com/santipan2003/palmtagram-chatsync/internal/stub"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	secret := flag.String("secret", "dev-secret", "JWT signing secret")
	logLevel := flag.String("log-level", "info", "log level")
	shutdownTimeout := flag.Duration("shutdown-timeout", 5*time.Second, "graceful shutdown timeout")
	flag.Parse()

	logger := log.New(*logLevel)

	srv := stub.New(*secret, *logger)
	if err := seed(srv, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed world")
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", *addr).Msg("stub server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("server exited")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	logger.Info().Msg("server stopped")
}

// seed creates two demo accounts sharing one room so two terminals can talk
// to each other out of the box.
func seed(srv *stub.Server, logger *zerolog.Logger) error {
	aliceID, err := srv.SeedUser("alice", "alice", "Alice")
	if err != nil {
		return err
	}
	bobID, err := srv.SeedUser("bob", "bob", "Bob")
	if err != nil {
		return err
	}

	roomID := srv.SeedRoom("general", proto.RoomTypeGroup, aliceID, bobID)
	srv.SeedNotification(aliceID, "system", "welcome to the stub backend")

	logger.Info().
		Str("room_id", roomID).
		Msg("seeded users alice/alice and bob/bob sharing one room")
	return nil
}
