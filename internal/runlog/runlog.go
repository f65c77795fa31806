// Package runlog owns per-run output directories ({root}/{MM-DD}/{NN}) and
// the housekeeping of old log files.
package runlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EvaluationFile = "evaluation.txt"
	SummaryFile    = "summary.jsonl"
)

type Run struct {
	ID      string
	Dir     string
	Started time.Time

	mu sync.Mutex
}

// NewRun creates the next numbered directory under {root}/{MM-DD}.
func NewRun(root string, now time.Time) (*Run, error) {
	day := filepath.Join(root, now.Format("01-02"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(day)
	if err != nil {
		return nil, err
	}
	next := 0
	for _, e := range entries {
		if n, err := strconv.Atoi(e.Name()); err == nil && e.IsDir() && n >= next {
			next = n + 1
		}
	}
	dir := filepath.Join(day, fmt.Sprintf("%02d", next))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, err
	}
	return &Run{ID: uuid.NewString(), Dir: dir, Started: now}, nil
}

func (r *Run) appendLine(name, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(r.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}

// AppendEvaluation adds one titled section to evaluation.txt.
func (r *Run) AppendEvaluation(title string, body fmt.Stringer) error {
	return r.appendLine(EvaluationFile, fmt.Sprintf("== %s ==\n%s", title, body))
}

// AppendRecord writes v as one JSON line to summary.jsonl.
func (r *Run) AppendRecord(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.appendLine(SummaryFile, string(b))
}

// CompressOlder gzips .txt and .log files under root not modified within
// retentionDays and removes the originals.
func CompressOlder(root string, retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	compressed := 0
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := filepath.Ext(p); ext != ".txt" && ext != ".log" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		compressed++
		return os.Remove(p)
	})
	return compressed, err
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
