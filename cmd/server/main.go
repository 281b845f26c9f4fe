package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"keyhunt.gg/internal/persistence/indexdb"
	ticklog "keyhunt.gg/internal/persistence/log"
	"keyhunt.gg/internal/persistence/snapshot"
	"keyhunt.gg/internal/sim/layout"
	"keyhunt.gg/internal/sim/session"
	"keyhunt.gg/internal/sim/tuning"
	"keyhunt.gg/internal/transport/observer"
	"keyhunt.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		sessionID  = flag.String("session", "session_1", "session id")
		seed       = flag.Int64("seed", 1337, "session seed (used only when starting fresh)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "path to layout.yaml (default: <configs>/layout.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (ticks/audits/rounds)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	lp := strings.TrimSpace(*layoutPath)
	if lp == "" {
		lp = filepath.Join(*configDir, "layout.yaml")
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	lay, err := layout.Load(lp)
	if err != nil {
		logger.Fatalf("load layout: %v", err)
	}

	sessionDir := filepath.Join(*dataDir, "sessions", *sessionID)
	_ = os.MkdirAll(sessionDir, 0o755)

	sess, err := session.New(session.Config{ID: *sessionID, Seed: *seed, Tune: tune}, lay)
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(sessionDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot %s: %v", snapshotToLoad, err)
		}
		if err := sess.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot %s (tick=%d round=%d)", snapshotToLoad, snap.Header.Tick, snap.Round.Number)
	}

	// Tick/audit JSONL logs (compressed) are the replay source of truth.
	tl := ticklog.NewTickLogger(sessionDir)
	defer tl.Close()
	al := ticklog.NewAuditLogger(sessionDir)
	defer al.Close()
	sess.SetTickLogger(tl)
	sess.SetAuditLogger(al)

	// Optional: read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(sessionDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		sess.SetTickLogger(teeTickLogger{tl, idx})
		sess.SetAuditLogger(teeAuditLogger{al, idx})
		sess.SetRoundRecorder(idx)
	}

	// Off-thread snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	sess.SetSnapshotSink(snapCh)
	go func() {
		for snap := range snapCh {
			path := filepath.Join(sessionDir, "snapshots", fmt.Sprintf("%012d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("write snapshot: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	wsSrv := ws.NewServer(sess, logger)
	obsSrv := observer.NewServer(sess, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metricsz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sess.Metrics())
	})
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("listening on %s (session=%s layout=%s required=%d)", *addr, *sessionID, lay.Name, lay.RequiredCount)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
		logger.Printf("shutting down")
	case err := <-runErr:
		logger.Printf("session loop exited: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	// Stop the session loop; it runs its teardown reconciliation pass
	// (never regressing an achieved unlock) before returning.
	sess.Stop()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
	}
	close(snapCh)
}

func latestSnapshot(sessionDir string) string {
	dir := filepath.Join(sessionDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}

// teeTickLogger fans a tick entry out to the JSONL log and the sqlite index.
type teeTickLogger struct {
	a session.TickLogger
	b session.TickLogger
}

func (t teeTickLogger) WriteTick(e session.TickLogEntry) error {
	err := t.a.WriteTick(e)
	_ = t.b.WriteTick(e)
	return err
}

type teeAuditLogger struct {
	a session.AuditLogger
	b session.AuditLogger
}

func (t teeAuditLogger) WriteAudit(e session.AuditEntry) error {
	err := t.a.WriteAudit(e)
	_ = t.b.WriteAudit(e)
	return err
}
