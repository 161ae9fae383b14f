// Package journal keeps an append-only, hourly rotated record of committed
// transactions as zstd compressed JSON lines.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridbank.ai/internal/currency"
)

const (
	prefix    = "transactions"
	hourStamp = "2006-01-02-15"
)

// Entry is one journal line.
type Entry struct {
	Seq uint64 `json:"seq"`
	currency.Transaction
}

// Writer appends transactions to <dir>/transactions-YYYY-MM-DD-HH.jsonl.zst.
// Each hour starts a new file; reopening an existing hour appends a new
// zstd frame.
type Writer struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	seq     uint64
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

var _ currency.Journal = (*Writer)(nil)

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// SetClock replaces the rotation clock. Call before the first Append.
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

func (w *Writer) Append(tx currency.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format(hourStamp)
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	w.seq++
	b, err := json.Marshal(Entry{Seq: w.seq, Transaction: tx})
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", prefix, hour))
}

// Files lists journal files under dir in chronological order.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadFile decodes every complete entry in path. A trailing frame left
// open by a live writer is tolerated.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	r := bufio.NewReader(dec)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			var e Entry
			if uerr := json.Unmarshal(line, &e); uerr != nil {
				return out, fmt.Errorf("%s: entry %d: %w", filepath.Base(path), len(out)+1, uerr)
			}
			out = append(out, e)
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return out, nil
		default:
			return out, err
		}
	}
}

// ReadDir decodes every journal file under dir, oldest first.
func ReadDir(dir string) ([]Entry, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, p := range files {
		entries, err := ReadFile(p)
		if err != nil {
			return out, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// HourOf returns the hour stamp encoded in a journal file name.
func HourOf(path string) (time.Time, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".jsonl.zst")
	stamp := strings.TrimPrefix(base, prefix+"-")
	if stamp == base {
		return time.Time{}, fmt.Errorf("not a journal file: %s", path)
	}
	return time.ParseInLocation(hourStamp, stamp, time.UTC)
}
