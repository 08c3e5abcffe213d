package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/santipan2003/palmtagram-chatsync/internal/config"
	"github.com/santipan2003/palmtagram-chatsync/internal/log"
	"github.com/santipan2003/palmtagram-chatsync/internal/rest"
	"github.com/santipan2003/palmtagram-chatsync/internal/store"
	"github.com/santipan2003/palmtagram-chatsync/internal/store/sqlite"
)

// cliEnv holds everything a subcommand needs after setup.
type cliEnv struct {
	cfg    config.Config
	logger *zerolog.Logger
	store  *sqlite.Store
}

func (e *cliEnv) close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// restClient builds an API client carrying the stored token, if any.
func (e *cliEnv) restClient(cmd *cobra.Command) *rest.Client {
	client := rest.New(e.cfg.APIBaseURL, e.cfg.RequestTimeout, e.logger)
	creds, err := e.store.LoadCredentials(cmd.Context())
	if err == nil {
		client.SetToken(creds.Token)
	}
	return client
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Realtime chat client for the palmtagram backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	setup := func() (*cliEnv, error) {
		bootstrapLogger := log.New("info")
		cfg, path, err := config.Load(bootstrapLogger, configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}

		logger := log.New(cfg.LogLevel)
		st, err := sqlite.New(cfg.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("open credentials store: %w", err)
		}
		return &cliEnv{cfg: cfg, logger: logger, store: st}, nil
	}

	root.AddCommand(
		newLoginCmd(setup),
		newLogoutCmd(setup),
		newRoomsCmd(setup),
		newChatCmd(setup),
	)
	return root
}

// requireCredentials loads stored credentials or fails with a login hint.
func requireCredentials(cmd *cobra.Command, env *cliEnv) (store.Credentials, error) {
	creds, err := env.store.LoadCredentials(cmd.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoCredentials) {
			return store.Credentials{}, errors.New("not logged in, run: chatsync login <username>")
		}
		return store.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}
