package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"factorysim.ai/internal/sim/world"
)

const hourLayout = "2006-01-02-15"

// TickLogger appends one JSON line per tick to hourly zstd segments named
// <runDir>/events/events-YYYY-MM-DD-HH.jsonl.zst. It implements world.TickSink.
type TickLogger struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	hour string
	seg  *segment
}

type segment struct {
	f   *os.File
	zw  *zstd.Encoder
	enc *json.Encoder
}

func NewTickLogger(runDir string) *TickLogger {
	return &TickLogger{dir: filepath.Join(runDir, "events"), now: time.Now}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hour := l.now().UTC().Format(hourLayout)
	if l.seg == nil || hour != l.hour {
		if err := l.closeSegment(); err != nil {
			return err
		}
		seg, err := openSegment(filepath.Join(l.dir, "events-"+hour+".jsonl.zst"))
		if err != nil {
			return err
		}
		l.seg, l.hour = seg, hour
	}
	if err := l.seg.enc.Encode(e); err != nil {
		return err
	}
	// A zstd block per tick keeps a live segment readable.
	return l.seg.zw.Flush()
}

func (l *TickLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeSegment()
}

func (l *TickLogger) closeSegment() error {
	if l.seg == nil {
		return nil
	}
	err := l.seg.zw.Close()
	if cerr := l.seg.f.Close(); err == nil {
		err = cerr
	}
	l.seg, l.hour = nil, ""
	return err
}

func openSegment(path string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{f: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}
