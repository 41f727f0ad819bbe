package source

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/pdu"
)

// spoolFormats maps spool file extensions to fragment formats.
var spoolFormats = map[string]string{
	".pdu":   pdu.Format3GPP,
	".hex":   pdu.Format3GPP,
	".json":  pdu.FormatJSON,
	".jsonl": pdu.FormatJSON,
}

// SpoolSource turns files dropped into a modem spool directory into events.
// Each file is one arrival: one fragment per non-empty line, the format taken
// from the extension. Files are removed once delivered. Writers must create
// the file under a dot-prefixed or .tmp name and rename it into place.
type SpoolSource struct {
	dir    string
	logger *zap.Logger
}

func NewSpoolSource(dir string, logger *zap.Logger) (*SpoolSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool directory: %s is not a directory", dir)
	}
	return &SpoolSource{dir: dir, logger: logger}, nil
}

// Subscribe starts watching the directory. Files already present are
// delivered first.
func (s *SpoolSource) Subscribe(handler Handler) (func(), error) {
	if handler == nil {
		return nil, errors.New("source: nil handler")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.drain(handler)
		s.loop(w, handler)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.Close()
			<-done
		})
	}, nil
}

func (s *SpoolSource) loop(w *fsnotify.Watcher, handler Handler) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.deliver(ev.Name, handler)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Spool watcher error", zap.Error(err), zap.String("dir", s.dir))
		}
	}
}

func (s *SpoolSource) drain(handler Handler) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("Failed to list spool directory", zap.Error(err), zap.String("dir", s.dir))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		s.deliver(filepath.Join(s.dir, entry.Name()), handler)
	}
}

func (s *SpoolSource) deliver(path string, handler Handler) {
	format, ok := spoolFormat(path)
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Already consumed by an earlier event for the same file.
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("Failed to read spool file", zap.Error(err), zap.String("path", path))
		}
		return
	}
	fragments := splitFragments(data)
	if len(fragments) == 0 {
		return
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		s.logger.Error("Failed to remove spool file", zap.Error(err), zap.String("path", path))
		return
	}

	s.logger.Debug("Spool arrival",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("fragments", len(fragments)))
	handler(Event{Format: format, Fragments: fragments, ReceivedAt: time.Now()})
}

func spoolFormat(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return "", false
	}
	format, ok := spoolFormats[strings.ToLower(filepath.Ext(name))]
	return format, ok
}

func splitFragments(data []byte) [][]byte {
	var fragments [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fragments = append(fragments, append([]byte(nil), line...))
	}
	return fragments
}
