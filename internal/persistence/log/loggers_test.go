package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"keyhunt.gg/internal/sim/session"
)

func TestTickLogger_WritesReadableJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)

	for tick := uint64(0); tick < 3; tick++ {
		if err := l.WriteTick(session.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("write tick %d: %v", tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ents, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) != 1 || !strings.HasSuffix(ents[0].Name(), ".jsonl.zst") {
		t.Fatalf("unexpected log files: %v", ents)
	}

	f, err := os.Open(filepath.Join(dir, "events", ents[0].Name()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []session.TickLogEntry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e session.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 3 || got[0].Tick != 0 || got[2].Tick != 2 {
		t.Fatalf("entries: %+v", got)
	}
}

func TestAuditLogger_WritesEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	if err := l.WriteAudit(session.AuditEntry{Tick: 1, Actor: "A0001", Action: "ZONE_UNLOCK", Target: "Z1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ents, err := os.ReadDir(filepath.Join(dir, "audit"))
	if err != nil || len(ents) != 1 {
		t.Fatalf("audit dir: %v %v", ents, err)
	}
}
