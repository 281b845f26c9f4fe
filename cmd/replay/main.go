// Command replay re-executes a recorded session from its tick log and
// verifies that every tick reproduces the recorded state digest. A digest
// mismatch means the simulation is no longer deterministic with respect to
// the recorded inputs.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"keyhunt.gg/internal/persistence/snapshot"
	"keyhunt.gg/internal/sim/layout"
	"keyhunt.gg/internal/sim/session"
	"keyhunt.gg/internal/sim/tuning"
)

func main() {
	var (
		sessionID  = flag.String("session", "session_1", "session id")
		seed       = flag.Int64("seed", 1337, "session seed (must match the recording)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		layoutPath = flag.String("layout", "", "path to layout.yaml (default: <configs>/layout.yaml)")
		snapPath   = flag.String("snapshot", "", "start from this snapshot instead of tick 0")
		maxTicks   = flag.Int("max_ticks", 0, "stop after N replayed ticks (0 = all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags)

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

	sess, err := session.New(session.Config{ID: *sessionID, Seed: *seed, Tune: tune}, lay)
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	startTick := uint64(0)
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := sess.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		startTick = snap.Header.Tick + 1
		logger.Printf("starting from snapshot tick=%d", snap.Header.Tick)
	}

	eventsDir := filepath.Join(*dataDir, "sessions", *sessionID, "events")
	entries, err := readTickLog(eventsDir)
	if err != nil {
		logger.Fatalf("read tick log: %v", err)
	}
	logger.Printf("loaded %d recorded ticks from %s", len(entries), eventsDir)

	replayed := 0
	mismatches := 0
	for _, rec := range entries {
		if rec.Tick < startTick {
			continue
		}
		if rec.Tick != sess.CurrentTick() {
			logger.Fatalf("tick gap: recording at %d, session at %d", rec.Tick, sess.CurrentTick())
		}

		joins := make([]session.JoinRequest, 0, len(rec.Joins))
		for _, j := range rec.Joins {
			joins = append(joins, session.JoinRequest{Name: j.Name})
		}
		actions := make([]session.ActionEnvelope, 0, len(rec.Actions))
		for _, a := range rec.Actions {
			actions = append(actions, session.ActionEnvelope{AgentID: a.AgentID, Act: a.Act})
		}

		tick, digest := sess.StepOnce(joins, rec.Leaves, actions)
		if digest != rec.Digest {
			mismatches++
			logger.Printf("DIGEST MISMATCH tick=%d recorded=%s replayed=%s", tick, rec.Digest, digest)
			if mismatches >= 5 {
				logger.Fatalf("too many mismatches, aborting")
			}
		}
		replayed++
		if *maxTicks > 0 && replayed >= *maxTicks {
			break
		}
	}

	if mismatches > 0 {
		logger.Fatalf("replay FAILED: %d/%d ticks diverged", mismatches, replayed)
	}
	fmt.Printf("replay OK: %d ticks verified\n", replayed)
}

func readTickLog(dir string) ([]session.TickLogEntry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var out []session.TickLogEntry
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var e session.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			out = append(out, e)
		}
		dec.Close()
		_ = f.Close()
		if err := sc.Err(); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}
