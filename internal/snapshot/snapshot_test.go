package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alfredjeanlab/crossing/internal/model"
	"github.com/alfredjeanlab/crossing/internal/session"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func seededStore(t *testing.T) *session.Store {
	t.Helper()
	st := session.NewStore()
	for _, sess := range []*model.Session{
		{ID: "car2-b", AgentID: "car2", ArrivalTime: now.Add(time.Minute)},
		{ID: "car1-a", AgentID: "car1", ArrivalTime: now, Reserved: true, Reservation: &model.Reservation{
			TimeRef: now, Entry: "left", Exit: "right", LatestEntry: 2, EarliestExit: 4, LatestExit: 6,
		}},
	} {
		if err := st.Add(sess); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return st
}

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
	err    error
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	d.last.Store(bytes.Clone(data))
	return d.err
}

func TestExportJSONL_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONL(session.NewStore(), now, &buf); err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Type != "header" || h.SessionCount != 0 || !h.Timestamp.Equal(now) {
		t.Errorf("unexpected header %+v", h)
	}
}

func TestExportJSONL_Sessions(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONL(seededStore(t), now, &buf); err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.SessionCount != 2 || h.ReservedCount != 1 {
		t.Errorf("header counts = %d/%d, want 2/1", h.SessionCount, h.ReservedCount)
	}

	var first struct {
		Type string        `json:"type"`
		Data model.Session `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if first.Type != "session" || first.Data.ID != "car1-a" {
		t.Errorf("sessions not sorted by id: first = %+v", first)
	}
	if first.Data.Reservation == nil || first.Data.Reservation.LatestExit != 6 {
		t.Errorf("reservation not exported: %+v", first.Data.Reservation)
	}
}

func TestExporterStartStop(t *testing.T) {
	dest := &mockDestination{}
	exp := NewExporter(seededStore(t), []Destination{dest}, 50*time.Millisecond, testLogger())
	exp.Start()

	time.Sleep(120 * time.Millisecond)
	exp.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}
	data, ok := dest.last.Load().([]byte)
	if !ok || len(nonEmptyLines(string(data))) != 3 {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestExporterStopWithoutStart(t *testing.T) {
	NewExporter(session.NewStore(), nil, time.Minute, testLogger()).Stop()
}

func TestExporterDestinationFailure(t *testing.T) {
	bad := &mockDestination{err: errors.New("bucket gone")}
	good := &mockDestination{}
	exp := NewExporter(seededStore(t), []Destination{bad, good}, time.Minute, testLogger())

	exp.ExportOnce(context.Background())

	if bad.writes.Load() != 1 || good.writes.Load() != 1 {
		t.Fatalf("writes = %d/%d, want 1/1", bad.writes.Load(), good.writes.Load())
	}
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body []string
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, *in.Key)
	f.body = append(f.body, string(data))
	return &s3.PutObjectOutput{}, nil
}

func TestS3Destination(t *testing.T) {
	tests := []struct {
		name    string
		history bool
		want    []string
	}{
		{"latest only", false, []string{"snap/sessions.jsonl"}},
		{"with history", true, []string{"snap/sessions.jsonl", "snap/history/sessions-20260301T120000Z.jsonl"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			put := &fakePutter{}
			d := &S3Destination{
				client: put,
				cfg:    S3Config{Bucket: "b", Key: "snap/sessions.jsonl", History: tt.history},
				now:    func() time.Time { return now },
			}
			if err := d.Write(context.Background(), []byte("{}\n")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if strings.Join(put.keys, ",") != strings.Join(tt.want, ",") {
				t.Errorf("keys = %v, want %v", put.keys, tt.want)
			}
			for _, b := range put.body {
				if b != "{}\n" {
					t.Errorf("body = %q", b)
				}
			}
		})
	}
}

func TestNewS3DestinationValidates(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), S3Config{Bucket: "b"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestGitDestination(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	remote := t.TempDir()
	run(t, remote, "git", "init", "--bare")
	work := t.TempDir()
	run(t, work, "git", "clone", remote, "repo")
	repo := filepath.Join(work, "repo")
	run(t, repo, "git", "config", "user.email", "ops@example.com")
	run(t, repo, "git", "config", "user.name", "Ops")
	run(t, repo, "git", "checkout", "-b", "main")
	if err := os.WriteFile(filepath.Join(repo, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	run(t, repo, "git", "add", ".")
	run(t, repo, "git", "commit", "-m", "init")
	run(t, repo, "git", "push", "origin", "main")

	dest := NewGitDestination(GitConfig{Repo: repo, File: "snapshots/sessions.jsonl", Remote: "origin"})
	first := []byte(`{"version":"1","type":"header","timestamp":"2026-03-01T12:00:00Z","session_count":1,"reserved_count":0}` + "\n" +
		`{"type":"session","data":{"id":"car1-a"}}` + "\n")
	// Same sessions, later header: no new commit.
	second := []byte(`{"version":"1","type":"header","timestamp":"2026-03-01T12:01:00Z","session_count":1,"reserved_count":0}` + "\n" +
		`{"type":"session","data":{"id":"car1-a"}}` + "\n")
	third := []byte(`{"version":"1","type":"header","timestamp":"2026-03-01T12:02:00Z","session_count":1,"reserved_count":1}` + "\n" +
		`{"type":"session","data":{"id":"car1-a","reserved":true}}` + "\n")
	for i, data := range [][]byte{first, second, third} {
		if err := dest.Write(context.Background(), data); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	got, err := os.ReadFile(filepath.Join(repo, "snapshots", "sessions.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !bytes.Equal(got, third) {
		t.Fatalf("file content = %q", got)
	}

	out, err := exec.Command("git", "-C", repo, "rev-list", "--count", "HEAD").Output()
	if err != nil {
		t.Fatalf("rev-list: %v", err)
	}
	if strings.TrimSpace(string(out)) != "3" {
		t.Errorf("commit count = %s, want 3 (unchanged sessions must not commit)", out)
	}
	msg, err := exec.Command("git", "-C", remote, "log", "-1", "--format=%s", "main").Output()
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if got := strings.TrimSpace(string(msg)); got != "snapshot: 1 sessions, 1 reserved" {
		t.Errorf("pushed commit message = %q", got)
	}
}

func TestCommitMessageFallback(t *testing.T) {
	if got := commitMessage([]byte("garbage\n")); got != "snapshot: update session table" {
		t.Errorf("commitMessage = %q", got)
	}
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("%s %v: %v\n%s", name, args, err, out)
	}
}
