package obslog

import (
	"errors"
	"testing"
	"time"
)

func TestEpisodeLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewEpisodeLog(dir, 0)

	for tick := 0; tick < 3; tick++ {
		err := l.WriteTick(Entry{
			EpisodeID: "ep-1",
			Tick:      tick,
			Time:      time.Unix(int64(tick), 0).UTC(),
			States:    map[int][]float64{7: {float64(tick), 0.5}},
			Rewards:   map[string]map[int]float64{"consumer": {7: -1.5}},
		})
		if err != nil {
			t.Fatalf("WriteTick(%d): %v", tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(dir, "observations")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want 1", files)
	}
	entries, err := ReadEntries(files[0])
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	last := entries[2]
	if last.Tick != 2 || last.States[7][0] != 2 || last.Rewards["consumer"][7] != -1.5 {
		t.Fatalf("last entry = %+v", last)
	}
}

func TestWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "obs", 64)

	for i := 0; i < 10; i++ {
		if err := w.Write(map[string]any{"tick": i, "pad": "0123456789012345678901234567890123456789"}); err != nil {
			t.Fatalf("Write(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := Files(dir, "obs")
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	// Each line is over 64 bytes, so every write after the first rotates.
	if len(files) != 10 {
		t.Fatalf("files = %d, want 10", len(files))
	}
	if files[0] != w.Path(1) {
		t.Fatalf("first file = %s, want %s", files[0], w.Path(1))
	}
}

func TestWriteAfterClose(t *testing.T) {
	w := NewWriter(t.TempDir(), "obs", 0)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Write(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
