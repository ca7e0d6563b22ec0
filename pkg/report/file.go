package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethpandaops/smokeoor/pkg/executor"
	"github.com/ethpandaops/smokeoor/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// CycleFileHandler is notified when a cycle's results file is complete.
type CycleFileHandler interface {
	HandleCycleFile(ctx context.Context, path string, info *CycleInfo) error
}

// File writes each cycle's record lines to a JSONL file in a directory.
type File struct {
	log      logrus.FieldLogger
	dir      string
	owner    *fsutil.Owner
	now      func() time.Time
	handlers []CycleFileHandler

	mu   sync.Mutex
	f    *os.File
	path string
}

// Ensure interface compliance.
var _ CycleSink = (*File)(nil)

// NewFile creates a file sink writing below dir. Handlers run, in order,
// after each cycle's file has been closed.
func NewFile(
	log logrus.FieldLogger,
	dir string,
	owner *fsutil.Owner,
	handlers ...CycleFileHandler,
) *File {
	return &File{
		log:      log.WithField("component", "file-sink"),
		dir:      dir,
		owner:    owner,
		now:      time.Now,
		handlers: handlers,
	}
}

// StartCycle opens a new results file named after the cycle.
func (s *File) StartCycle(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
	}

	if err := fsutil.MkdirAll(s.dir, 0o755, s.owner); err != nil {
		return fmt.Errorf("creating results directory: %w", err)
	}

	short := runID
	if len(short) > 8 {
		short = short[:8]
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%d_%s.jsonl", s.now().Unix(), short))

	f, err := fsutil.OpenAppend(path, s.owner)
	if err != nil {
		return fmt.Errorf("opening results file: %w", err)
	}

	s.f = f
	s.path = path

	s.log.WithField("path", path).Debug("Results file opened")

	return nil
}

// Write appends the record line to the current cycle's file.
func (s *File) Write(_ context.Context, result *executor.Result) error {
	line, err := result.Record.Line()
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("no cycle in progress")
	}

	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing results file: %w", err)
	}

	return nil
}

// EndCycle closes the file and passes it to the handlers.
func (s *File) EndCycle(ctx context.Context, info *CycleInfo) error {
	s.mu.Lock()
	f, path := s.f, s.path
	s.f, s.path = nil, ""
	s.mu.Unlock()

	if f == nil {
		return nil
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing results file: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"path":   path,
		"total":  info.Total,
		"failed": info.Failed,
	}).Info("Results file written")

	for _, h := range s.handlers {
		if err := h.HandleCycleFile(ctx, path, info); err != nil {
			return err
		}
	}

	return nil
}
