package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/world"
)

type Config struct {
	TickRateHz int
	// Seats are the scenario player ids in assignment order.
	Seats    []string
	Catalogs protocol.CatalogDigests

	CommandsPerSecond float64
	CommandBurst      int
	// OutboundQueue bounds the TICK backlog per client. A client that falls
	// this far behind is disconnected.
	OutboundQueue int
}

// Recorder is the relay's own copy of the match. *lockstep.Session
// implements it.
type Recorder interface {
	ApplyTick(msg protocol.TickMsg) (string, error)
	State() *world.State
}

// Server is the lockstep relay. One goroutine (Run) owns the seats, the
// pending command buffer and the tick counter; connection goroutines talk
// to it over channels.
type Server struct {
	cfg       Config
	log       *log.Logger
	validator *protocol.Validator
	recorder  Recorder
	upgrader  websocket.Upgrader

	join  chan joinRequest
	leave chan string
	inbox chan inboundCommand
	done  chan struct{} // closed when Run returns

	// Owned by Run.
	clients map[string]*client
	seats   map[string]string // player id -> session id
	tick    uint64
	pending []protocol.Command
	history [][]byte // encoded TICK messages, index = tick-1

	metrics metrics
}

type metrics struct {
	tick           atomic.Uint64
	clients        atomic.Int64
	commands       atomic.Uint64
	rejected       atomic.Uint64
	rateLimited    atomic.Uint64
	slowDisconnect atomic.Uint64
	recorderErrors atomic.Uint64
}

type client struct {
	sessionID string
	playerID  string
	name      string

	out     chan []byte   // TICK messages; written only by Run
	errs    chan []byte   // ERROR replies; never closed
	kick    chan struct{} // closed by Run when the client is dropped
	limiter *rate.Limiter
}

type joinRequest struct {
	sessionID string
	hello     protocol.HelloMsg
	resp      chan joinResponse
}

type joinResponse struct {
	client  *client
	welcome protocol.WelcomeMsg
	history [][]byte
	errCode string
}

type inboundCommand struct {
	sessionID string
	cmd       protocol.Command
}

func NewServer(cfg Config, validator *protocol.Validator, logger *log.Logger) *Server {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 10
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = 256
	}
	if cfg.CommandsPerSecond <= 0 {
		cfg.CommandsPerSecond = 20
	}
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 40
	}
	return &Server{
		cfg:       cfg,
		log:       logger,
		validator: validator,
		join:      make(chan joinRequest, 64),
		leave:     make(chan string, 64),
		inbox:     make(chan inboundCommand, 1024),
		done:      make(chan struct{}),
		clients:   map[string]*client{},
		seats:     map[string]string{},
		upgrader:  newUpgrader(),
	}
}

// SetRecorder makes the relay apply every batch it broadcasts. Call before Run.
func (s *Server) SetRecorder(r Recorder) { s.recorder = r }

// Preload installs the batches of an interrupted match so ticks continue
// after the last one and late joiners can still catch up from tick 1.
// Call before Run.
func (s *Server) Preload(batches []protocol.TickMsg) error {
	history := make([][]byte, 0, len(batches))
	for i, m := range batches {
		if m.Tick != uint64(i+1) {
			return fmt.Errorf("preload: batch %d has tick %d", i, m.Tick)
		}
		m.Type, m.ProtocolVersion = protocol.TypeTick, protocol.Version
		if m.Commands == nil {
			m.Commands = []protocol.Command{}
		}
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("preload: tick %d: %w", m.Tick, err)
		}
		history = append(history, b)
	}
	s.history = history
	s.tick = uint64(len(history))
	s.metrics.tick.Store(s.tick)
	return nil
}

func (s *Server) CurrentTick() uint64 { return s.metrics.tick.Load() }

func (s *Server) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			for id := range s.clients {
				s.drop(id)
			}
			return ctx.Err()
		case req := <-s.join:
			req.resp <- s.handleJoin(req)
		case id := <-s.leave:
			s.drop(id)
		case in := <-s.inbox:
			s.handleCommand(in)
		case <-ticker.C:
			s.step()
		}
	}
}

func (s *Server) handleJoin(req joinRequest) joinResponse {
	seat := ""
	if p := req.hello.PreferredSeat; p != "" && s.seatFree(p) {
		seat = p
	}
	if seat == "" {
		for _, p := range s.cfg.Seats {
			if s.seatFree(p) {
				seat = p
				break
			}
		}
	}
	if seat == "" {
		return joinResponse{errCode: protocol.ErrMatchFull}
	}

	name := req.hello.PlayerName
	if name == "" {
		name = seat
	}
	c := &client{
		sessionID: req.sessionID,
		playerID:  seat,
		name:      name,
		out:       make(chan []byte, s.cfg.OutboundQueue),
		errs:      make(chan []byte, 8),
		kick:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(s.cfg.CommandsPerSecond), s.cfg.CommandBurst),
	}
	s.clients[c.sessionID] = c
	s.seats[seat] = c.sessionID
	s.metrics.clients.Store(int64(len(s.clients)))
	s.log.Printf("join session=%s seat=%s name=%q tick=%d", c.sessionID, seat, name, s.tick)

	return joinResponse{
		client: c,
		welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       c.sessionID,
			PlayerID:        seat,
			Players:         append([]string(nil), s.cfg.Seats...),
			TickRateHz:      s.cfg.TickRateHz,
			CurrentTick:     s.tick,
			Catalogs:        s.cfg.Catalogs,
		},
		// history is append-only; the slice header pins the ticks before
		// this join. Later ticks arrive through c.out.
		history: s.history[:len(s.history):len(s.history)],
	}
}

func (s *Server) seatFree(player string) bool {
	known := false
	for _, p := range s.cfg.Seats {
		if p == player {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	_, taken := s.seats[player]
	return !taken
}

func (s *Server) drop(sessionID string) {
	c, ok := s.clients[sessionID]
	if !ok {
		return
	}
	delete(s.clients, sessionID)
	if s.seats[c.playerID] == sessionID {
		delete(s.seats, c.playerID)
	}
	close(c.kick)
	s.metrics.clients.Store(int64(len(s.clients)))
	s.log.Printf("leave session=%s seat=%s", sessionID, c.playerID)
}

func (s *Server) handleCommand(in inboundCommand) {
	c, ok := s.clients[in.sessionID]
	if !ok {
		return
	}
	if s.recorder != nil {
		if st := s.recorder.State(); st != nil && st.Status != world.StatusPlaying {
			s.replyError(c, protocol.ErrMatchOver, "match is over")
			return
		}
	}
	cmd := in.cmd
	cmd.PlayerID = c.playerID
	s.pending = append(s.pending, cmd)
	s.metrics.commands.Add(1)
}

// step closes the current batch. Ticks only advance while someone is
// connected.
func (s *Server) step() {
	if len(s.clients) == 0 {
		return
	}
	s.tick++
	batch := s.pending
	if batch == nil {
		batch = []protocol.Command{}
	}
	s.pending = nil

	msg := protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            s.tick,
		Commands:        batch,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("encode tick %d: %v", s.tick, err)
		return
	}
	s.history = append(s.history, b)
	s.metrics.tick.Store(s.tick)

	if s.recorder != nil {
		if _, err := s.recorder.ApplyTick(msg); err != nil {
			s.metrics.recorderErrors.Add(1)
			s.log.Printf("recorder: tick %d: %v", s.tick, err)
		}
	}

	for id, c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.metrics.slowDisconnect.Add(1)
			s.log.Printf("session=%s too slow at tick %d; disconnecting", id, s.tick)
			s.drop(id)
		}
	}
}

func (s *Server) replyError(c *client, code, message string) {
	b, _ := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	select {
	case c.errs <- b:
	default:
	}
}
