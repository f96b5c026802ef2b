package filesink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/smallhouse123/go-analytics/service/analytics"
	"go.uber.org/zap"
)

const (
	Name = "file"

	// hourLayout names one file per hour, e.g. 26_10_19__14.log
	hourLayout = "06_01_02__15"
)

var ErrClosed = errors.New("file sink is closed")

// Sink appends batches as newline delimited JSON to hourly files.
type Sink struct {
	dir         string
	currentHour string
	currentFile *os.File
	closed      bool
	mu          sync.Mutex
	now         func() time.Time
	logger      *zap.Logger
}

// New creates dir, plus a per-pod subdirectory when K8S_POD_NAME is set.
func New(dir string, logger *zap.Logger) (*Sink, error) {
	if dir == "" {
		return nil, errors.New("file sink directory is not set")
	}
	if podName := os.Getenv("K8S_POD_NAME"); podName != "" {
		dir = filepath.Join(dir, podName)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.Wrap(err, "create file sink directory")
	}

	return &Sink{
		dir:    dir,
		now:    time.Now,
		logger: logger.Named("filesink").With(zap.String("dir", dir)),
	}, nil
}

func (s *Sink) Name() string {
	return Name
}

func (s *Sink) Write(_ context.Context, events []analytics.Event) error {
	if len(events) == 0 {
		return nil
	}

	lines := make([][]byte, 0, len(events))
	for i := range events {
		line, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", i, err)
		}
		lines = append(lines, line)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.rotate(); err != nil {
		return err
	}

	w := bufio.NewWriter(s.currentFile)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "write events")
	}
	return nil
}

// rotate opens the file for the current hour, closing the previous one.
func (s *Sink) rotate() error {
	currentHour := s.now().Format(hourLayout)
	if s.currentHour == currentHour && s.currentFile != nil {
		return nil
	}

	if s.currentFile != nil {
		if err := s.currentFile.Close(); err != nil {
			s.logger.Warn("failed to close event file", zap.String("hour", s.currentHour), zap.Error(err))
		}
		s.currentFile = nil
	}

	path := filepath.Join(s.dir, currentHour+".log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "open event file")
	}

	s.currentFile = file
	s.currentHour = currentHour
	s.logger.Debug("opened event file", zap.String("path", path))
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.currentFile == nil {
		return nil
	}
	err := s.currentFile.Close()
	s.currentFile = nil
	return err
}
