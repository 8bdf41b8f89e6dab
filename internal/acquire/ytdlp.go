package acquire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec; stderr is folded into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		if msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// YTDLP downloads through the yt-dlp binary, which understands media hosting
// pages as well as plain file URLs. Output goes to <dir>/<id>.<ext>; an
// already downloaded file is reused.
type YTDLP struct {
	Enabled bool
	Binary  string
	Dir     string
	MaxSize int64
	Run     Runner
}

func (y *YTDLP) Name() string { return "yt-dlp" }

func (y *YTDLP) binary() string {
	if b := strings.TrimSpace(y.Binary); b != "" {
		return b
	}
	return "yt-dlp"
}

func (y *YTDLP) baseArgs() []string {
	limit := y.MaxSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	return []string{
		"--no-warnings",
		"--playlist-items", "1",
		"-f", "best",
		"--max-filesize", strconv.FormatInt(limit, 10),
		"-o", filepath.Join(y.Dir, "%(id)s.%(ext)s"),
	}
}

func (y *YTDLP) Fetch(ctx context.Context, url string) (string, error) {
	if !y.Enabled {
		return "", ErrDisabled
	}
	run := y.Run
	if run == nil {
		if _, err := exec.LookPath(y.binary()); err != nil {
			return "", err
		}
		run = ExecRunner
	}
	if err := os.MkdirAll(y.Dir, 0o755); err != nil {
		return "", err
	}

	args := append(y.baseArgs(), "--skip-download", "--print", "filename", url)
	out, err := run(ctx, y.binary(), args...)
	if err != nil {
		return "", fmt.Errorf("resolve filename: %w", err)
	}
	path := lastLine(out)
	if path == "" {
		return "", errors.New("resolve filename: empty output")
	}
	if ok, err := y.usable(path); ok || err != nil {
		return path, err
	}

	args = append(y.baseArgs(), "--no-progress", "--quiet", url)
	if _, err := run(ctx, y.binary(), args...); err != nil {
		y.cleanup(path)
		return "", fmt.Errorf("download: %w", err)
	}
	ok, err := y.usable(path)
	if err != nil {
		return "", err
	}
	if !ok {
		// yt-dlp exits 0 but writes nothing when --max-filesize rejects the file.
		y.cleanup(path)
		return "", fmt.Errorf("%w: no file produced for %s", ErrTooLarge, url)
	}
	return path, nil
}

// usable reports whether path exists within the size ceiling. An oversized
// file is removed and reported as ErrTooLarge.
func (y *YTDLP) usable(path string) (bool, error) {
	st, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	limit := y.MaxSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if st.Size() > limit {
		_ = os.Remove(path)
		return false, fmt.Errorf("%w: %d bytes", ErrTooLarge, st.Size())
	}
	return true, nil
}

func (y *YTDLP) cleanup(path string) {
	_ = os.Remove(path + ".part")
	_ = os.Remove(path + ".ytdl")
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
