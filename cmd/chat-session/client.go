package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/chat-session/session"
	"github.com/gosuda/chat-session/wsconn"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Sign in and chat from the terminal",
	Long: "Sign in to a chat server and chat line by line. Lines are sent as messages; " +
		"/users lists the roster, /retry signs in again after the connection was given up, /quit exits.",
	RunE: runClient,
}

var (
	flagEndpoint       string
	flagUsername       string
	flagPassword       string
	flagReconnectMax   int
	flagReconnectBase  time.Duration
	flagReconnectCap   time.Duration
	flagStatePort      int
	flagStateAddrLocal bool
)

func init() {
	def := session.DefaultReconnectPolicy()
	endpoint := os.Getenv("CHAT_ENDPOINT")
	if endpoint == "" {
		endpoint = "ws://127.0.0.1:8080/ws"
	}

	flags := clientCmd.Flags()
	flags.StringVar(&flagEndpoint, "endpoint", endpoint, "websocket endpoint of the chat server (from env CHAT_ENDPOINT if set)")
	flags.StringVarP(&flagUsername, "username", "u", "", "username to sign in with")
	flags.StringVar(&flagPassword, "password", os.Getenv("CHAT_PASSWORD"), "password (from env CHAT_PASSWORD if set)")
	flags.IntVar(&flagReconnectMax, "reconnect-max", def.MaxAttempts, "reconnect attempts before giving up")
	flags.DurationVar(&flagReconnectBase, "reconnect-base", def.Base, "delay before the first reconnect attempt")
	flags.DurationVar(&flagReconnectCap, "reconnect-cap", def.Cap, "upper bound on the reconnect delay (zero or less uses the default)")
	flags.IntVar(&flagStatePort, "state-port", -1, "optional local HTTP port serving GET /state (negative to disable)")
	flags.BoolVar(&flagStateAddrLocal, "state-localhost", true, "bind the state server to 127.0.0.1 only")
}

func reconnectPolicy() session.ReconnectPolicy {
	return session.ReconnectPolicy{
		Base:        flagReconnectBase,
		Factor:      session.DefaultReconnectPolicy().Factor,
		Cap:         flagReconnectCap,
		MaxAttempts: flagReconnectMax,
	}
}

func runClient(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(flagUsername) == "" {
		return errors.New("--username is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := session.New(session.Config{
		Endpoint:  flagEndpoint,
		Opener:    &wsconn.Opener{},
		Reconnect: reconnectPolicy(),
	})
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}
	defer ctrl.Close()

	if flagStatePort >= 0 {
		host := ""
		if flagStateAddrLocal {
			host = "127.0.0.1"
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, flagStatePort),
			Handler:           newStateHandler(ctrl),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("[client] state server stopped")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info().Msgf("[client] serving state at http://%s/state", srv.Addr)
	}

	if err := ctrl.SignIn(flagUsername, flagPassword); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	out := cmd.OutOrStdout()
	r := newRenderer(out)
	r.render(ctrl.View())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ctrl.Changes():
			v := ctrl.View()
			r.render(v)
			if v.Notice == session.NoticeAuthRejected {
				return fmt.Errorf("sign-in rejected for %q", flagUsername)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctrl, out, line); quit {
				return nil
			}
		}
	}
}

func readLines(in io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		out <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("[client] read stdin")
	}
}

// chatSession is the part of the controller the input loop drives.
type chatSession interface {
	SignIn(username, password string) error
	SendMessage(text string) (string, error)
	View() session.View
}

// handleLine runs one line of user input and reports whether to exit.
func handleLine(s chatSession, out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/users":
		printUsers(out, s.View())
		return false
	case "/retry":
		if err := s.SignIn(flagUsername, flagPassword); err != nil {
			fmt.Fprintf(out, "* cannot sign in: %v\n", err)
		}
		return false
	}
	if strings.HasPrefix(line, "/") && !strings.HasPrefix(line, "//") {
		fmt.Fprintf(out, "* unknown command %s\n", line)
		return false
	}
	line = strings.TrimPrefix(line, "/")
	if _, err := s.SendMessage(line); err != nil {
		switch {
		case errors.Is(err, session.ErrNotAuthenticated):
			fmt.Fprintln(out, "* not signed in; message not sent")
		default:
			fmt.Fprintf(out, "* send failed: %v\n", err)
		}
	}
	return false
}
