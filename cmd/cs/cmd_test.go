package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/daviddao/calsync/pkg/config"
	"github.com/daviddao/calsync/pkg/model"
)

// --- newCandidate tests ---

func TestNewCandidate_NoReminder(t *testing.T) {
	c := newCandidate("e1", "Ride", "2024-01-01T10:00", false, -1, 1000)
	if c.ReminderMinutes != nil {
		t.Fatalf("reminder = %v, want nil", *c.ReminderMinutes)
	}
	if !c.Stamped || c.UpdatedAt != 1000 {
		t.Fatalf("stamped=%v updatedAt=%d, want true/1000", c.Stamped, c.UpdatedAt)
	}
}

func TestNewCandidate_ZeroReminderKept(t *testing.T) {
	c := newCandidate("e1", "Ride", "", true, 0, 0)
	if c.ReminderMinutes == nil || *c.ReminderMinutes != 0 {
		t.Fatal("reminder of 0 minutes should be kept")
	}
	if c.Stamped {
		t.Fatal("updatedAt 0 should leave the candidate unstamped")
	}
}

// --- app wiring ---

func newTestConfig(t *testing.T, name string) *config.Config {
	t.Helper()
	return &config.Config{
		Addr:         ":0",
		DataPath:     filepath.Join(t.TempDir(), "data", name),
		RedisChannel: config.DefaultRedisChannel,
		CORSOrigins:  []string{"*"},
		LogLevel:     "error",
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	a, err := openApp(newTestConfig(t, "events.json"), zap.NewNop())
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestOpenApp_SQLiteInferred(t *testing.T) {
	a, err := openApp(newTestConfig(t, "events.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()
	captureStdout(t, func() { a.cmdUpsert([]string{"--id", "x", "--updated-at", "5"}) })
	if total, _ := a.engine.Counts(); total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
}

func TestOpenApp_BadRedisURL(t *testing.T) {
	cfg := newTestConfig(t, "events.json")
	cfg.RedisURL = "http://not-redis"
	if _, err := openApp(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error for non-redis URL")
	}
}

// --- commands ---

type pullOutput struct {
	Events    []model.Event `json:"events"`
	Count     int           `json:"count"`
	Watermark int64         `json:"watermark"`
}

func pullJSON(t *testing.T, a *app, args ...string) pullOutput {
	t.Helper()
	var code int
	out := captureStdout(t, func() { code = a.cmdPull(append(args, "--json")) })
	if code != 0 {
		t.Fatalf("pull exit = %d", code)
	}
	var p pullOutput
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decode pull output %q: %v", out, err)
	}
	return p
}

func TestUpsertThenPull(t *testing.T) {
	a := newTestApp(t)
	out := captureStdout(t, func() {
		a.cmdUpsert([]string{"--id", "e1", "--title", "Ride", "--start", "2024-01-01T10:00", "--updated-at", "1000"})
	})
	if !strings.Contains(out, "upserted e1") {
		t.Fatalf("upsert output = %q", out)
	}

	p := pullJSON(t, a)
	if p.Count != 1 || p.Events[0].Title != "Ride" || p.Watermark != 1000 {
		t.Fatalf("pull = %+v", p)
	}

	if p := pullJSON(t, a, "--since", "1000"); p.Count != 0 || p.Watermark != 1000 {
		t.Fatalf("pull since 1000 = %+v", p)
	}
}

func TestUpsert_OlderWriteIgnored(t *testing.T) {
	a := newTestApp(t)
	captureStdout(t, func() { a.cmdUpsert([]string{"--id", "e1", "--title", "New", "--updated-at", "2000"}) })
	out := captureStdout(t, func() { a.cmdUpsert([]string{"--id", "e1", "--title", "Old", "--updated-at", "1000"}) })
	if !strings.Contains(out, "ignored e1") {
		t.Fatalf("output = %q", out)
	}
	if p := pullJSON(t, a); p.Events[0].Title != "New" {
		t.Fatalf("title = %q, want New", p.Events[0].Title)
	}
}

func TestUpsert_MissingID(t *testing.T) {
	a := newTestApp(t)
	var code int
	errOut := captureStderr(t, func() { code = a.cmdUpsert([]string{"--title", "x"}) })
	if code != 1 || !strings.Contains(errOut, "usage") {
		t.Fatalf("code=%d stderr=%q", code, errOut)
	}
}

func TestDelete_TombstonesAndActiveFilter(t *testing.T) {
	a := newTestApp(t)
	captureStdout(t, func() {
		a.cmdUpsert([]string{"--id", "a", "--updated-at", "10"})
		a.cmdUpsert([]string{"--id", "b", "--updated-at", "10"})
	})
	out := captureStdout(t, func() { a.cmdDelete([]string{"--at", "20", "b", "ghost"}) })
	if !strings.Contains(out, "deleted 2 of 2") {
		t.Fatalf("delete output = %q", out)
	}

	all := pullJSON(t, a)
	if all.Count != 3 {
		t.Fatalf("count = %d, want 3 (a, b tombstone, ghost tombstone)", all.Count)
	}
	active := pullJSON(t, a, "--active")
	if active.Count != 1 || active.Events[0].ID != "a" {
		t.Fatalf("active = %+v", active.Events)
	}
	if active.Watermark != 20 {
		t.Fatalf("watermark = %d, want 20 (tombstones advance it)", active.Watermark)
	}
}

func TestDelete_NoArgs(t *testing.T) {
	a := newTestApp(t)
	var code int
	captureStderr(t, func() { code = a.cmdDelete(nil) })
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}

func TestDelete_FlagsAfterIDsRejected(t *testing.T) {
	a := newTestApp(t)
	var code int
	errOut := captureStderr(t, func() { code = a.cmdDelete([]string{"e1", "--at", "2000", "--json"}) })
	if code != 1 || !strings.Contains(errOut, "flags must come first") {
		t.Fatalf("code=%d stderr=%q", code, errOut)
	}
	if got := a.engine.ListSince(0); len(got) != 0 {
		t.Fatalf("rejected delete wrote records: %+v", got)
	}
}

func TestDelete_FlagsBeforeIDsUseMark(t *testing.T) {
	a := newTestApp(t)
	out := captureStdout(t, func() { a.cmdDelete([]string{"--at", "2000", "--json", "e1"}) })
	var res map[string]interface{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res["affectedCount"] != float64(1) {
		t.Fatalf("result = %v", res)
	}
	got := a.engine.ListSince(0)
	if len(got) != 1 || got[0].ID != "e1" || got[0].UpdatedAt != 2000 || !got[0].Deleted {
		t.Fatalf("records = %+v, want one e1 tombstone at 2000", got)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	a := newTestApp(t)
	var code int
	errOut := captureStderr(t, func() { code = a.dispatch("frobnicate", nil) })
	if code != 1 || !strings.Contains(errOut, `unknown command "frobnicate"`) {
		t.Fatalf("code=%d stderr=%q", code, errOut)
	}
}

func TestDispatch_RoutesAliases(t *testing.T) {
	a := newTestApp(t)
	captureStdout(t, func() {
		if code := a.dispatch("put", []string{"--id", "a", "--updated-at", "5"}); code != 0 {
			t.Errorf("put exit = %d", code)
		}
		if code := a.dispatch("rm", []string{"--at", "9", "a"}); code != 0 {
			t.Errorf("rm exit = %d", code)
		}
	})
	got := a.engine.ListSince(0)
	if len(got) != 1 || !got[0].Deleted || got[0].UpdatedAt != 9 {
		t.Fatalf("records = %+v", got)
	}
}

func TestStatus_JSON(t *testing.T) {
	a := newTestApp(t)
	captureStdout(t, func() {
		a.cmdUpsert([]string{"--id", "a", "--updated-at", "10"})
		a.cmdDelete([]string{"--at", "30", "b"})
	})
	out := captureStdout(t, func() { a.cmdStatus([]string{"--json"}) })
	var st map[string]interface{}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st["events"] != float64(2) || st["activeEvents"] != float64(1) || st["tombstones"] != float64(1) {
		t.Fatalf("status = %v", st)
	}
	if st["watermark"] != float64(30) || st["push"] != false {
		t.Fatalf("status = %v", st)
	}
}

func TestInit_CreatesDataFile(t *testing.T) {
	a := newTestApp(t)
	out := captureStdout(t, func() {
		if code := a.cmdInit(nil); code != 0 {
			t.Errorf("init exit = %d", code)
		}
	})
	if !strings.Contains(out, "initialized calsync") {
		t.Fatalf("output = %q", out)
	}
	if _, err := os.Stat(a.cfg.DataPath); err != nil {
		t.Fatalf("data file not created: %v", err)
	}
}

func TestInit_LeavesExistingFileAlone(t *testing.T) {
	a := newTestApp(t)
	corrupt := []byte("{not json")
	if err := os.WriteFile(a.cfg.DataPath, corrupt, 0o644); err != nil {
		t.Fatal(err)
	}
	out := captureStdout(t, func() {
		if code := a.cmdInit(nil); code != 0 {
			t.Errorf("init exit = %d", code)
		}
	})
	if strings.Contains(out, "created empty store") {
		t.Fatalf("init claimed to create a store over an existing file: %q", out)
	}
	data, err := os.ReadFile(a.cfg.DataPath)
	if err != nil || !bytes.Equal(data, corrupt) {
		t.Fatalf("existing file changed: %q (err %v)", data, err)
	}
}

func TestEnsureVAPIDKeys_WritesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CALSYNC_ADDR=:9000"), 0600); err != nil {
		t.Fatal(err)
	}

	written, err := ensureVAPIDKeys(path)
	if err != nil || !written {
		t.Fatalf("first call: written=%v err=%v", written, err)
	}
	data, _ := os.ReadFile(path)
	text := string(data)
	if !strings.HasPrefix(text, "CALSYNC_ADDR=:9000\n") {
		t.Fatalf("existing content not preserved: %q", text)
	}
	if !strings.Contains(text, "VAPID_PUBLIC_KEY=") || !strings.Contains(text, "VAPID_PRIVATE_KEY=") {
		t.Fatalf("keys missing: %q", text)
	}

	written, err = ensureVAPIDKeys(path)
	if err != nil || written {
		t.Fatalf("second call: written=%v err=%v", written, err)
	}
	again, _ := os.ReadFile(path)
	if string(again) != text {
		t.Fatal("second call modified the file")
	}
}

func TestPollOnce_AdvancesCursor(t *testing.T) {
	a := newTestApp(t)
	captureStdout(t, func() {
		a.cmdUpsert([]string{"--id", "a", "--title", "First", "--updated-at", "10"})
		a.cmdUpsert([]string{"--id", "b", "--title", "Second", "--updated-at", "20"})
	})

	var buf bytes.Buffer
	cursor := a.pollOnce(&buf, 10, false)
	if cursor != 20 {
		t.Fatalf("cursor = %d, want 20", cursor)
	}
	if got := buf.String(); strings.Contains(got, "First") || !strings.Contains(got, `b "Second"`) {
		t.Fatalf("output = %q", got)
	}

	buf.Reset()
	if cursor = a.pollOnce(&buf, cursor, true); cursor != 20 || buf.Len() != 0 {
		t.Fatalf("idle poll: cursor=%d output=%q", cursor, buf.String())
	}
}

func TestPrintEvent(t *testing.T) {
	five := 5
	out := captureStdout(t, func() {
		printEvent(model.Event{ID: "e1", Title: "Ride", Start: "2024-01-01", AllDay: true, ReminderMinutes: &five, UpdatedAt: 7})
		printEvent(model.Tombstone("e2", 9))
	})
	if !strings.Contains(out, `[ts=7] e1 "Ride" 2024-01-01 (all day) reminder=5m`) {
		t.Fatalf("event line missing: %q", out)
	}
	if !strings.Contains(out, "[ts=9] e2 deleted") {
		t.Fatalf("tombstone line missing: %q", out)
	}
}

// --- Helpers ---

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = old
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}
