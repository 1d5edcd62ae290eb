package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitConfig locates the snapshot file inside a local clone.
type GitConfig struct {
	Repo   string // path to an existing clone
	File   string // path of the snapshot inside Repo
	Branch string
	Remote string // pushed after each commit; empty = commit locally only
}

// GitDestination commits the session table to a file in a git clone. A
// snapshot whose sessions match the committed file is skipped even if its
// header timestamp moved, so an idle zone does not grow the history.
type GitDestination struct {
	cfg GitConfig
}

// NewGitDestination creates a git destination.
func NewGitDestination(cfg GitConfig) *GitDestination {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &GitDestination{cfg: cfg}
}

func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if _, err := d.git(ctx, "checkout", d.cfg.Branch); err != nil {
		return err
	}
	if d.cfg.Remote != "" {
		// The remote may not have the branch yet.
		_, _ = d.git(ctx, "pull", "--ff-only", d.cfg.Remote, d.cfg.Branch)
	}

	path := filepath.Join(d.cfg.Repo, d.cfg.File)
	prev, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err == nil && bytes.Equal(body(prev), body(data)) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	if _, err := d.git(ctx, "add", d.cfg.File); err != nil {
		return err
	}
	if _, err := d.git(ctx, "commit", "-m", commitMessage(data)); err != nil {
		return err
	}
	if d.cfg.Remote != "" {
		if _, err := d.git(ctx, "push", d.cfg.Remote, d.cfg.Branch); err != nil {
			return err
		}
	}
	return nil
}

// body strips the header line.
func body(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}

func commitMessage(data []byte) string {
	var h header
	line, _, _ := bytes.Cut(data, []byte("\n"))
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "header" {
		return "snapshot: update session table"
	}
	return fmt.Sprintf("snapshot: %d sessions, %d reserved", h.SessionCount, h.ReservedCount)
}

func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.cfg.Repo
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}
