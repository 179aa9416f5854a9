// Package devserver is a small in-process chat server speaking the session
// protocol. It assigns sequence numbers, authenticates users, acknowledges
// sends and announces presence changes, which is enough to run the client
// locally and to test it end to end.
package devserver

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chat-session/protocol"
	"github.com/gosuda/chat-session/sanitize"
)

// DefaultHistoryLimit is the number of log elements served in a snapshot.
const DefaultHistoryLimit = 200

// Config configures a Server. The zero value accepts any credentials and
// keeps history in memory only.
type Config struct {
	// Accounts maps usernames to passwords. Empty means open mode: every
	// non-empty username is accepted with any password.
	Accounts     map[string]string
	HistoryLimit int
	// Store, when set, persists every log element and seeds the history.
	Store  *Store
	Logger *zerolog.Logger
	Now    func() time.Time
}

// Server is the chat hub.
type Server struct {
	accounts map[string]string
	limit    int
	store    *Store
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastSeq int64
	history []protocol.LogElement
	roster  []string
	live    map[string]int
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

// New builds a server, loading history from cfg.Store when present.
func New(cfg Config) (*Server, error) {
	s := &Server{
		accounts: cfg.Accounts,
		limit:    cfg.HistoryLimit,
		store:    cfg.Store,
		now:      cfg.Now,
		live:     map[string]int{},
		clients:  map[*client]struct{}{},
	}
	if s.limit <= 0 {
		s.limit = DefaultHistoryLimit
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	} else {
		s.logger = log.Logger
	}

	if s.store != nil {
		last, err := s.store.LastSeq()
		if err != nil {
			return nil, fmt.Errorf("read last seq: %w", err)
		}
		history, err := s.store.LoadRecent(s.limit)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		s.lastSeq = last
		s.history = history
		for _, el := range history {
			s.addToRosterLocked(el.Username)
		}
		s.logger.Info().Int("elements", len(history)).Int64("lastSeq", last).Msg("[devserver] loaded history")
	}
	return s, nil
}

// Handler returns the HTTP router: the websocket endpoint and a health check.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// CloseAll disconnects every client with a going-away close frame.
func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		c.close()
	}
}

// Wait blocks until every connection handler has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("[devserver] upgrade")
		return
	}
	c := newClient(s, conn)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go c.writeLoop()
	go func() {
		defer s.wg.Done()
		c.readLoop()
		s.detach(c)
	}()
}

func (s *Server) handle(c *client, m protocol.Message) {
	if req, ok := m.(protocol.AuthRequest); ok {
		s.authenticate(c, req)
		return
	}
	if c.name() == "" {
		s.logger.Warn().Str("msgType", m.MsgType()).Msg("[devserver] message before auth; ignored")
		return
	}

	switch msg := m.(type) {
	case protocol.GetUsersInChat:
		c.push(protocol.UsersInChat{Users: s.users()})
	case protocol.GetChatLogElements:
		c.push(protocol.ChatLogElements{Elements: s.recent()})
	case protocol.ClientToServerMessage:
		s.post(c, msg)
	default:
		s.logger.Warn().Str("msgType", m.MsgType()).Str("user", c.name()).Msg("[devserver] unexpected message; ignored")
	}
}

func (s *Server) authenticate(c *client, req protocol.AuthRequest) {
	if c.name() != "" {
		s.logger.Warn().Str("user", c.name()).Msg("[devserver] repeated auth request; ignored")
		return
	}
	// A name is taken verbatim or not at all; every client must agree on it.
	name := req.Username
	if name == "" || sanitize.Username(name) != name || !s.checkPassword(name, req.Password) {
		s.logger.Info().Str("user", req.Username).Msg("[devserver] auth rejected")
		c.push(protocol.AuthResponse{Success: false})
		return
	}
	// The response goes out before the client becomes a broadcast target so
	// it never sees an event ahead of its authResponse.
	c.push(protocol.AuthResponse{Success: true})

	s.mu.Lock()
	c.username.Store(name)
	s.live[name]++
	s.addToRosterLocked(name)
	var el protocol.LogElement
	first := s.live[name] == 1
	if first {
		el = s.appendLocked(protocol.LogElement{ElementType: protocol.ElementUserJoinedOrLeft, Username: name, Joined: true})
	}
	s.mu.Unlock()

	s.logger.Info().Str("user", name).Bool("firstConn", first).Msg("[devserver] authenticated")
	if first {
		s.persist(el)
		s.broadcast(nil, presenceEvent(el))
	}
}

func (s *Server) checkPassword(name, password string) bool {
	if len(s.accounts) == 0 {
		return true
	}
	want, ok := s.accounts[name]
	return ok && want == password
}

func (s *Server) post(c *client, msg protocol.ClientToServerMessage) {
	s.mu.Lock()
	el := s.appendLocked(protocol.LogElement{
		ElementType: protocol.ElementMessage,
		Username:    c.name(),
		Text:        msg.Text,
	})
	s.mu.Unlock()

	s.persist(el)
	c.push(protocol.MessageAck{ClientSideID: msg.ClientSideID, SeqN: el.SeqN, Timestamp: el.Timestamp})
	s.broadcast(c, protocol.ServerToClientMessage{
		SeqN:      el.SeqN,
		Username:  el.Username,
		Timestamp: el.Timestamp,
		Text:      el.Text,
	})
}

func (s *Server) detach(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	var el protocol.LogElement
	last := false
	if c.name() != "" {
		s.live[c.name()]--
		if s.live[c.name()] <= 0 {
			delete(s.live, c.name())
			last = true
			el = s.appendLocked(protocol.LogElement{ElementType: protocol.ElementUserJoinedOrLeft, Username: c.name()})
		}
	}
	s.mu.Unlock()

	c.close()
	if last {
		s.logger.Info().Str("user", c.name()).Msg("[devserver] user left")
		s.persist(el)
		s.broadcast(nil, presenceEvent(el))
	}
}

// appendLocked stamps el with the next seqN and the current time and adds
// it to the in-memory history.
func (s *Server) appendLocked(el protocol.LogElement) protocol.LogElement {
	s.lastSeq++
	el.SeqN = s.lastSeq
	el.Timestamp = s.now().UTC().Format(time.RFC3339)
	s.history = append(s.history, el)
	if over := len(s.history) - 2*s.limit; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
	return el
}

func (s *Server) persist(el protocol.LogElement) {
	if s.store == nil {
		return
	}
	if err := s.store.Append(el); err != nil {
		s.logger.Warn().Err(err).Int64("seqN", el.SeqN).Msg("[devserver] persist element")
	}
}

func (s *Server) addToRosterLocked(name string) {
	if name != "" && !slices.Contains(s.roster, name) {
		s.roster = append(s.roster, name)
	}
}

func (s *Server) users() []protocol.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.User, 0, len(s.roster))
	for _, name := range s.roster {
		out = append(out, protocol.User{Username: name, Online: s.live[name] > 0})
	}
	return out
}

func (s *Server) recent() []protocol.LogElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := max(0, len(s.history)-s.limit)
	return slices.Clone(s.history[from:])
}

// broadcast pushes m to every authenticated client except skip.
func (s *Server) broadcast(skip *client, m protocol.Message) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c != skip && c.name() != "" {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.push(m)
	}
}

func presenceEvent(el protocol.LogElement) protocol.UserJoinedOrLeft {
	return protocol.UserJoinedOrLeft{
		SeqN:      el.SeqN,
		Username:  el.Username,
		Joined:    el.Joined,
		Timestamp: el.Timestamp,
	}
}
