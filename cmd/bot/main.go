package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/coder/websocket"

	"lockstep.rts/internal/bot"
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/lockstep"
	"lockstep.rts/internal/sim/tuning"
	"lockstep.rts/internal/sim/world"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "relay ws url")
		name       = flag.String("name", "bot", "player name")
		seat       = flag.String("seat", "enemy", "preferred scenario seat")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		thinkEvery = flag.Uint64("think_every", 10, "evaluate rules every N ticks")
		attackAt   = flag.Int("attack_at", 8, "idle army size that triggers an attack")
	)
	flag.Parse()
	if *thinkEvery == 0 {
		*thinkEvery = 1
	}

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	eng := world.New(tune, cats)
	start, err := eng.NewMatch()
	if err != nil {
		logger.Fatalf("new match: %v", err)
	}
	mirror := lockstep.New(eng, start, lockstep.Config{})

	brain, err := bot.NewEngine(eng, bot.DefaultRules(*attackAt), logger)
	if err != nil {
		logger.Fatalf("rules: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.Dial(ctx, *url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(4 << 20)

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		PreferredSeat:   *seat,
		CatalogDigests: &protocol.CatalogDigests{
			Units:     cats.Units.Digest,
			Buildings: cats.Buildings.Digest,
			Tuning:    tune.Digest(),
		},
	}
	if err := writeJSON(ctx, conn, hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var (
		playerID string
		liveFrom uint64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("read: %v", err)
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			playerID, liveFrom = w.PlayerID, w.CurrentTick
			logger.Printf("WELCOME session=%s player=%s tick=%d tick_rate=%d", w.SessionID, w.PlayerID, w.CurrentTick, w.TickRateHz)

		case protocol.TypeTick:
			var tm protocol.TickMsg
			if err := json.Unmarshal(msg, &tm); err != nil {
				continue
			}
			if _, err := mirror.ApplyTick(tm); err != nil {
				logger.Fatalf("mirror: %v", err)
			}
			// Catch-up ticks describe the past; only act on live ones.
			if playerID == "" || tm.Tick <= liveFrom || tm.Tick%*thinkEvery != 0 {
				continue
			}
			for _, cmd := range brain.Decide(mirror.State(), playerID) {
				if err := writeJSON(ctx, conn, protocol.CommandMsg{
					Type:            protocol.TypeCommand,
					ProtocolVersion: protocol.Version,
					Command:         cmd,
				}); err != nil {
					logger.Printf("send COMMAND: %v", err)
					return
				}
			}
			if st := mirror.State(); st.Status != world.StatusPlaying && tm.Tick%600 == 0 {
				logger.Printf("match over at tick=%d status=%s winner=%s", st.Tick, st.Status, st.Winner)
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR code=%s message=%s", e.Code, e.Message)
			if playerID == "" {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}
