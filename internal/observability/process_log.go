// File: internal/observability/process_log.go
package observability

import (
	"bufio"
	"bytes"
	"io"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProcessLogFile returns the path of the log file for a process instance
// inside a launch log directory.
func ProcessLogFile(launchDir, instance string) string {
	return filepath.Join(launchDir, instance+".log")
}

// NewProcessLogFile opens a rotating log file for one launched process.
func NewProcessLogFile(launchDir, instance string, maxSizeMB, maxBackups int) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   ProcessLogFile(launchDir, instance),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
}

// LineWriter forwards each complete line written to it to a zap logger. It
// is how a child process's stdout/stderr reach the console.
type LineWriter struct {
	mu     sync.Mutex
	logger *zap.Logger
	stream string
	buf    []byte
}

// NewLineWriter creates a LineWriter tagging entries with the stream name
// ("stdout" or "stderr").
func NewLineWriter(logger *zap.Logger, stream string) *LineWriter {
	return &LineWriter{logger: logger, stream: stream}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		w.emit(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *LineWriter) emit(line string) {
	if w.stream == "stderr" {
		w.logger.Warn(line, zap.String("stream", w.stream))
		return
	}
	w.logger.Info(line, zap.String("stream", w.stream))
}

// CopyLines copies r to w line by line until EOF. Used by tests and the logs
// command when the file is not being followed.
func CopyLines(w io.Writer, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if _, err := io.WriteString(w, scanner.Text()+"\n"); err != nil {
			return err
		}
	}
	return scanner.Err()
}
