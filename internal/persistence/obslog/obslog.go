// Package obslog writes per-tick observation records as zstd-compressed
// JSON lines, rotating to a new file once a size threshold is crossed.
package obslog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DefaultRotateBytes is used when a writer is created with a non-positive
// threshold.
const DefaultRotateBytes int64 = 64 << 20

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("observation log closed")

// Entry is one tick of one episode.
type Entry struct {
	EpisodeID string                     `json:"episode_id"`
	Tick      int                        `json:"tick"`
	Time      time.Time                  `json:"time"`
	States    map[int][]float64          `json:"states,omitempty"`
	Rewards   map[string]map[int]float64 `json:"rewards,omitempty"`
	Actions   map[int]float64            `json:"actions,omitempty"`
}

// Writer appends entries to <dir>/<prefix>-NNNNNN.jsonl.zst. It is safe
// for concurrent use.
type Writer struct {
	dir         string
	prefix      string
	rotateBytes int64

	mu      sync.Mutex
	seq     int
	written int64
	closed  bool
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter creates a writer. Files are opened lazily on first write.
func NewWriter(dir, prefix string, rotateBytes int64) *Writer {
	if rotateBytes <= 0 {
		rotateBytes = DefaultRotateBytes
	}
	return &Writer{dir: dir, prefix: prefix, rotateBytes: rotateBytes}
}

// Write encodes v as one JSON line. Rotation is checked before each write,
// so a file may exceed the threshold by at most one line.
func (w *Writer) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.w == nil || w.written >= w.rotateBytes {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.written += int64(len(b)) + 1
	return w.w.Flush()
}

// Close flushes and closes the current file. Further writes fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.closeLocked()
}

// Path returns the file name for sequence number seq.
func (w *Writer) Path(seq int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%06d.jsonl.zst", w.prefix, seq))
}

func (w *Writer) rotateLocked() error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	w.seq++
	f, err := os.OpenFile(w.Path(w.seq), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
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
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.written = 0
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.w = nil
	return err
}

// EpisodeLog writes Entry values for the simulator.
type EpisodeLog struct{ w *Writer }

// NewEpisodeLog creates an observation log under dir.
func NewEpisodeLog(dir string, rotateBytes int64) *EpisodeLog {
	return &EpisodeLog{w: NewWriter(dir, "observations", rotateBytes)}
}

func (l *EpisodeLog) WriteTick(e Entry) error { return l.w.Write(e) }
func (l *EpisodeLog) Close() error            { return l.w.Close() }

// Files lists the log files under dir for prefix in sequence order.
func Files(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadEntries decodes every entry of one compressed file.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeEntries(f)
}

// DecodeEntries decodes zstd-compressed JSON lines from r.
func DecodeEntries(r io.Reader) ([]Entry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 32<<20)
	var out []Entry
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("decode line %d: %w", len(out)+1, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
