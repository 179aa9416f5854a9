// Package session drives a chat client session: it opens the channel,
// authenticates, requests the initial snapshots and folds every later server
// message into the chat log and the presence set.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chat-session/chatlog"
	"github.com/gosuda/chat-session/presence"
	"github.com/gosuda/chat-session/protocol"
)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrSignInInProgress = errors.New("session: sign-in already in progress")
	ErrEmptyUsername    = errors.New("session: empty username")
	ErrEmptyMessage     = errors.New("session: empty message")
	ErrNoOpener         = errors.New("session: no channel opener configured")
)

// Config configures a Controller. Only Opener is required.
type Config struct {
	// Endpoint is the channel address handed to Opener.
	Endpoint string
	Opener   Opener
	// IDs generates client side ids; defaults to UUIDGenerator.
	IDs IDGenerator
	// Reconnect defaults to DefaultReconnectPolicy when left zero.
	Reconnect ReconnectPolicy
	// AfterFunc schedules reconnect attempts; defaults to time.AfterFunc.
	AfterFunc AfterFunc
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Controller owns one chat session. All methods are safe for concurrent use;
// every channel event and every action is applied atomically.
type Controller struct {
	mu sync.Mutex

	endpoint  string
	opener    Opener
	ids       IDGenerator
	policy    ReconnectPolicy
	afterFunc AfterFunc
	logger    zerolog.Logger

	state    State
	username string
	password string
	log      *chatlog.Log
	presence *presence.Set
	notice   Notice

	channel Channel
	// gen identifies the current channel; events tagged with an older
	// generation belong to a discarded channel and are dropped.
	gen            uint64
	attempts       int
	retry          Timer
	awaitingSignIn bool

	changes chan struct{}
}

// New returns a Disconnected controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Opener == nil {
		return nil, ErrNoOpener
	}
	c := &Controller{
		endpoint:  cfg.Endpoint,
		opener:    cfg.Opener,
		ids:       cfg.IDs,
		policy:    cfg.Reconnect,
		afterFunc: cfg.AfterFunc,
		state:     Disconnected,
		log:       chatlog.New(),
		presence:  presence.New(),
		changes:   make(chan struct{}, 1),
	}
	if c.ids == nil {
		c.ids = UUIDGenerator{}
	}
	if c.policy == (ReconnectPolicy{}) {
		c.policy = DefaultReconnectPolicy()
	}
	if c.afterFunc == nil {
		c.afterFunc = realAfterFunc
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	} else {
		c.logger = log.Logger
	}
	return c, nil
}

// SignIn opens a channel and authenticates with the given credentials once
// it is up. It is accepted while Disconnected, and while Connecting after the
// server rejected the previous credentials.
func (c *Controller) SignIn(username, password string) error {
	if username == "" {
		return ErrEmptyUsername
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected && !(c.state == Connecting && c.awaitingSignIn) {
		return fmt.Errorf("%w (state %s)", ErrSignInInProgress, c.state)
	}
	prevState, prevAwaiting := c.state, c.awaitingSignIn

	c.discardChannelLocked()
	c.fireLocked(trigSignIn)
	c.username, c.password = username, password
	c.attempts = 0
	c.awaitingSignIn = false
	c.notice = NoticeNone

	if err := c.openLocked(); err != nil {
		c.state, c.awaitingSignIn = prevState, prevAwaiting
		c.password = ""
		c.notifyLocked()
		return err
	}
	c.logger.Info().Str("user", username).Str("endpoint", c.endpoint).Msg("[session] signing in")
	c.notifyLocked()
	return nil
}

// SendMessage logs text as a pending entry and sends it to the server. It
// returns the client side id that the server will acknowledge. Only valid
// while Authenticated.
func (c *Controller) SendMessage(text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Authenticated || c.channel == nil {
		return "", ErrNotAuthenticated
	}
	if text == "" {
		return "", ErrEmptyMessage
	}

	id := c.ids.NewID()
	if err := c.log.AppendPending(chatlog.PendingSend{ClientSideID: id, Text: text}); err != nil {
		return "", fmt.Errorf("append pending %s: %w", id, err)
	}
	c.notifyLocked()

	if err := c.channel.Send(protocol.ClientToServerMessage{ClientSideID: id, Text: text}); err != nil {
		return id, fmt.Errorf("send message: %w", err)
	}
	return id, nil
}

// Close drops the channel and any scheduled reconnect for process shutdown.
// The log and presence set are kept for a final render.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.discardChannelLocked()
	c.fireLocked(trigShutdown)
	c.password = ""
	c.awaitingSignIn = false
	c.notifyLocked()
	return nil
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Changes is signalled after every mutation. Signals coalesce: a reader that
// falls behind sees one pending signal, then calls View for the latest state.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notifyLocked() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Controller) fireLocked(t trigger) bool {
	to, ok := next(c.state, t)
	if !ok {
		c.logger.Warn().Stringer("state", c.state).Stringer("trigger", t).Msg("[session] transition not allowed")
		return false
	}
	if to != c.state {
		c.logger.Debug().Stringer("from", c.state).Stringer("to", to).Stringer("trigger", t).Msg("[session] state change")
	}
	c.state = to
	return true
}

func (c *Controller) bind(gen uint64) Events {
	return Events{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(data []byte) { c.handleMessage(gen, data) },
		OnClose:   func(err error) { c.handleClose(gen, err) },
	}
}

func (c *Controller) current(gen uint64) bool {
	return gen == c.gen && c.channel != nil
}

func (c *Controller) openLocked() error {
	c.gen++
	ch, err := c.opener.Open(c.endpoint, c.bind(c.gen))
	if err != nil {
		return fmt.Errorf("open %s: %w", c.endpoint, err)
	}
	c.channel = ch
	return nil
}

// discardChannelLocked cancels a scheduled reconnect and closes the current
// channel. Bumping gen detaches the old channel's callbacks.
func (c *Controller) discardChannelLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.gen++
	if c.channel == nil {
		return
	}
	ch := c.channel
	c.channel = nil
	if err := ch.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("[session] close channel")
	}
}

func (c *Controller) scheduleReconnectLocked() {
	if c.attempts >= c.policy.MaxAttempts {
		c.fireLocked(trigGiveUp)
		c.notice = NoticeGaveUp
		c.password = ""
		c.awaitingSignIn = false
		c.logger.Warn().Int("attempts", c.attempts).Msg("[session] giving up on reconnect; sign in again")
		return
	}
	delay := c.policy.Delay(c.attempts)
	c.attempts++
	c.notice = NoticeReconnecting
	gen := c.gen
	c.logger.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("[session] reconnect scheduled")
	c.retry = c.afterFunc(delay, func() { c.reconnect(gen) })
}

func (c *Controller) reconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != Connecting || c.channel != nil {
		return
	}
	c.retry = nil
	if err := c.openLocked(); err != nil {
		c.logger.Warn().Err(err).Msg("[session] reopen failed")
		c.scheduleReconnectLocked()
	}
	c.notifyLocked()
}

func (c *Controller) handleOpen(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(gen) {
		return
	}
	if !c.fireLocked(trigOpened) {
		return
	}
	c.logger.Info().Str("endpoint", c.endpoint).Msg("[session] connected")
	if err := c.channel.Send(protocol.AuthRequest{Username: c.username, Password: c.password}); err != nil {
		c.logger.Warn().Err(err).Msg("[session] send auth request")
		c.discardChannelLocked()
		c.fireLocked(trigClosed)
		c.scheduleReconnectLocked()
	}
	c.notifyLocked()
}

func (c *Controller) handleClose(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(gen) {
		return
	}
	c.channel = nil
	c.gen++
	c.logger.Info().Err(err).Stringer("state", c.state).Msg("[session] channel closed")
	c.fireLocked(trigClosed)
	c.scheduleReconnectLocked()
	c.notifyLocked()
}

func (c *Controller) handleMessage(gen uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(gen) {
		return
	}
	m, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn().Err(err).Stringer("state", c.state).Msg("[session] discarding inbound message")
		return
	}

	switch c.state {
	case AuthPending:
		resp, ok := m.(protocol.AuthResponse)
		if !ok {
			c.violationLocked(m)
			return
		}
		c.handleAuthLocked(resp)
	case Authenticated:
		c.dispatchLocked(m)
	default:
		c.violationLocked(m)
		return
	}
	c.notifyLocked()
}

func (c *Controller) violationLocked(m protocol.Message) {
	c.logger.Warn().Stringer("state", c.state).Str("msgType", m.MsgType()).Msg("[session] unexpected message; discarded")
}

func (c *Controller) handleAuthLocked(resp protocol.AuthResponse) {
	if !resp.Success {
		c.fireLocked(trigAuthRejected)
		c.logger.Warn().Str("user", c.username).Msg("[session] authentication rejected")
		c.discardChannelLocked()
		c.awaitingSignIn = true
		c.notice = NoticeAuthRejected
		c.password = ""
		return
	}

	c.fireLocked(trigAuthOK)
	c.attempts = 0
	c.notice = NoticeNone
	c.logger.Info().Str("user", c.username).Msg("[session] authenticated")
	for _, req := range []protocol.Message{protocol.GetUsersInChat{}, protocol.GetChatLogElements{}} {
		if err := c.channel.Send(req); err != nil {
			c.logger.Warn().Err(err).Str("msgType", req.MsgType()).Msg("[session] send snapshot request")
		}
	}
}

func (c *Controller) dispatchLocked(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.UsersInChat:
		users := make([]presence.Entry, 0, len(msg.Users))
		for _, u := range msg.Users {
			users = append(users, presence.Entry{Username: u.Username, Online: u.Online})
		}
		c.presence.ApplySnapshot(users)

	case protocol.ChatLogElements:
		c.log.Replace(c.entriesFromSnapshot(msg.Elements))

	case protocol.UserJoinedOrLeft:
		if !c.presence.ApplyDelta(msg.Username, msg.Joined) {
			c.logger.Debug().Str("user", msg.Username).Msg("[session] presence change for user not in roster")
		}
		c.log.InsertBySeqN(chatlog.Presence{
			SeqN:      msg.SeqN,
			Username:  msg.Username,
			Timestamp: msg.Timestamp,
			Joined:    msg.Joined,
		})

	case protocol.MessageAck:
		if _, ok := c.log.ResolvePending(msg.ClientSideID, msg.SeqN, c.username, msg.Timestamp); !ok {
			c.logger.Warn().Str("clientSideId", msg.ClientSideID).Int64("seqN", msg.SeqN).Msg("[session] ack for unknown send; ignored")
		}

	case protocol.ServerToClientMessage:
		c.log.InsertBySeqN(chatlog.Message{
			SeqN:      msg.SeqN,
			Username:  msg.Username,
			Timestamp: msg.Timestamp,
			Text:      msg.Text,
		})

	default:
		c.logger.Warn().Str("msgType", m.MsgType()).Msg("[session] unhandled message; ignored")
	}
}

func (c *Controller) entriesFromSnapshot(elements []protocol.LogElement) []chatlog.Entry {
	out := make([]chatlog.Entry, 0, len(elements))
	for _, el := range elements {
		switch el.ElementType {
		case protocol.ElementMessage:
			out = append(out, chatlog.Message{SeqN: el.SeqN, Username: el.Username, Timestamp: el.Timestamp, Text: el.Text})
		case protocol.ElementUserJoinedOrLeft:
			out = append(out, chatlog.Presence{SeqN: el.SeqN, Username: el.Username, Timestamp: el.Timestamp, Joined: el.Joined})
		default:
			c.logger.Warn().Str("elementType", el.ElementType).Int64("seqN", el.SeqN).Msg("[session] unknown log element; dropped")
		}
	}
	return out
}
