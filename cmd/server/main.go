package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "lockstep.rts/internal/persistence/log"
	"lockstep.rts/internal/persistence/snapshot"
	"lockstep.rts/internal/protocol"
	"lockstep.rts/internal/sim/catalogs"
	"lockstep.rts/internal/sim/lockstep"
	"lockstep.rts/internal/sim/tuning"
	"lockstep.rts/internal/sim/world"
	"lockstep.rts/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		matchID    = flag.String("match", "match_1", "match id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (ticks + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume from the latest snapshot in the match dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

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

	matchDir := filepath.Join(*dataDir, "matches", *matchID)
	_ = os.MkdirAll(matchDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		if snapshotToLoad, err = snapshot.Latest(filepath.Join(matchDir, "snapshots")); err != nil {
			logger.Fatalf("latest snapshot: %v", err)
		}
	}
	if snapshotToLoad != "" {
		h, err := snapshot.ReadHeader(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if h.MatchID != "" && h.MatchID != *matchID {
			logger.Fatalf("snapshot match id mismatch: flag=%s snap=%s", *matchID, h.MatchID)
		}
	}

	state, history, err := resumeMatch(eng, matchDir, snapshotToLoad, logger)
	if err != nil {
		logger.Fatalf("resume: %v", err)
	}
	if state.Tick > 0 {
		logger.Printf("resumed match=%s tick=%d status=%s", *matchID, state.Tick, state.Status)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(matchDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(matchDir)
	defer tickLog.Close()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	sess := lockstep.New(eng, state, lockstep.Config{
		MatchID:            *matchID,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		TickLogger:         multiTickLogger{a: tickLog, b: idx},
		Snapshots:          snapCh,
	})

	// Snapshot writer.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(matchDir, "snapshots", snapshot.FileName(snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}
	seats := make([]string, 0, len(tune.Scenario.Players))
	for _, p := range tune.Scenario.Players {
		seats = append(seats, p.ID)
	}
	relay := ws.NewServer(ws.Config{
		TickRateHz: tune.TickRateHz,
		Seats:      seats,
		Catalogs: protocol.CatalogDigests{
			Units:     cats.Units.Digest,
			Buildings: cats.Buildings.Digest,
			Tuning:    tune.Digest(),
		},
		CommandsPerSecond: tune.Relay.CommandsPerSecond,
		CommandBurst:      tune.Relay.CommandBurst,
		OutboundQueue:     tune.Relay.OutboundQueue,
	}, validator, logger)
	relay.SetRecorder(sess)
	if err := relay.Preload(history); err != nil {
		logger.Fatalf("relay: %v", err)
	}

	go func() {
		if err := relay.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("relay stopped: %v", err)
		}
	}()

	relayMetrics := relay.MetricsHandler(*matchID)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		relayMetrics(rw, r)
		if idx != nil {
			fmt.Fprintf(rw, "# HELP rts_index_dropped_total Index writes dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE rts_index_dropped_total counter\n")
			fmt.Fprintf(rw, "rts_index_dropped_total{match=%q} %d\n", *matchID, idx.Dropped())
		}
	})

	enableAdminHTTP := envBool("RTS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("RTS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			st := sess.State()
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				MatchID   string            `json:"match_id"`
				Tick      uint64            `json:"tick"`
				Digest    string            `json:"digest"`
				Status    world.MatchStatus `json:"status"`
				Winner    string            `json:"winner,omitempty"`
				Players   []*world.Player   `json:"players"`
				Units     int               `json:"units"`
				Buildings int               `json:"buildings"`
			}{
				MatchID:   *matchID,
				Tick:      st.Tick,
				Digest:    sess.Digest(),
				Status:    st.Status,
				Winner:    st.Winner,
				Players:   st.Players,
				Units:     len(st.Units),
				Buildings: len(st.Buildings),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			snap := sess.Snapshot()
			rw.Header().Set("Content-Type", "application/json")
			select {
			case snapCh <- snap:
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": snap.Header.Tick})
			case <-ctx2.Done():
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": snap.Header.Tick, "error": ctx2.Err().Error()})
			}
		})
	} else {
		logger.Printf("admin endpoints disabled (RTS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (RTS_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", relay.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s match=%s seats=%v tick_rate=%d", *addr, *matchID, seats, tune.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
