package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/chat-session/devserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local chat server speaking the session protocol",
	RunE:  runDevserver,
}

var (
	flagServerURLs []string
	flagPort       int
	flagName       string
	flagDataPath   string
	flagCredKey    string
	flagUsers      []string
	flagHistory    int
)

func init() {
	flags := devserverCmd.Flags()
	flags.StringSliceVar(&flagServerURLs, "server-url", splitEnv("RELAY"), "portal relay base URL(s); repeat or comma-separated (from env RELAY if set)")
	flags.IntVar(&flagPort, "port", 8080, "local HTTP port (negative to disable)")
	flags.StringVar(&flagName, "name", "chat-session", "name advertised on the relays")
	flags.StringVar(&flagDataPath, "data-path", "", "optional directory to persist the chat log via PebbleDB")
	flags.StringVar(&flagCredKey, "cred-key", "", "optional relay credential private key (base64 encoded)")
	flags.StringSliceVar(&flagUsers, "users", nil, "accounts as user:password; empty accepts any password")
	flags.IntVar(&flagHistory, "history", devserver.DefaultHistoryLimit, "log elements served in a snapshot")
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// parseAccounts turns user:password pairs into an account map.
func parseAccounts(pairs []string) (map[string]string, error) {
	accounts := make(map[string]string, len(pairs))
	for _, p := range pairs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		user, pass, ok := strings.Cut(p, ":")
		user = strings.TrimSpace(user)
		if !ok || user == "" {
			return nil, fmt.Errorf("invalid account %q: want user:password", p)
		}
		if _, dup := accounts[user]; dup {
			return nil, fmt.Errorf("duplicate account %q", user)
		}
		accounts[user] = pass
	}
	return accounts, nil
}

func runDevserver(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, err := parseAccounts(flagUsers)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		log.Warn().Msg("[devserver] no --users given; any password is accepted")
	}

	var store *devserver.Store
	if flagDataPath != "" {
		store, err = devserver.OpenStore(flagDataPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
	}

	srv, err := devserver.New(devserver.Config{
		Accounts:     accounts,
		HistoryLimit: flagHistory,
		Store:        store,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return err
	}
	defer func() {
		srv.CloseAll()
		srv.Wait()
		if store != nil {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("[devserver] store close error")
			}
		}
		log.Info().Msg("[devserver] shutdown complete")
	}()
	handler := srv.Handler()

	// Shared credential across all relay listeners
	cred := sdk.NewCredential()
	if flagCredKey != "" {
		key, err := base64.StdEncoding.DecodeString(flagCredKey)
		if err != nil {
			return fmt.Errorf("decode cred key: %w", err)
		}
		cred, err = cryptoops.NewCredentialFromPrivateKey(key)
		if err != nil {
			return fmt.Errorf("new credential from private key: %w", err)
		}
	}

	var clients []*sdk.RDClient
	var listeners []net.Listener
	for _, raw := range flagServerURLs {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		client, err := sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = []string{u} })
		if err != nil {
			log.Error().Err(err).Str("url", u).Msg("[devserver] new relay client failed")
			continue
		}
		clients = append(clients, client)
		ln, err := client.Listen(cred, flagName, []string{"http/1.1"})
		if err != nil {
			return fmt.Errorf("listen (%s): %w", u, err)
		}
		listeners = append(listeners, ln)
		log.Info().Str("url", u).Str("name", flagName).Msg("[devserver] listening on relay")
	}
	if len(listeners) == 0 && flagPort < 0 {
		return errors.New("nothing to serve: set --port or --server-url")
	}

	for i, ln := range listeners {
		idx := i
		go func() {
			if err := http.Serve(ln, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
				log.Error().Err(err).Int("listener", idx).Msg("[devserver] relay http error")
			}
		}()
	}

	var httpSrv *http.Server
	if flagPort >= 0 {
		httpSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", flagPort),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		log.Info().Msgf("[devserver] serving locally at ws://127.0.0.1:%d/ws", flagPort)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[devserver] local http stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, c := range clients {
		_ = c.Close()
	}
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("[devserver] http server shutdown error")
		}
	}
	return nil
}
