package logfilewriter

import (
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"

	"github.com/rubydx/sorbet-mux/src/mux/internal/fs"
	"github.com/rubydx/sorbet-mux/src/mux/internal/serverinfofile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const _fmtSessionLogKey = "session-log:%s"
const _logsDirName = "sorbet-mux"

// Params define the dependencies for SetupSessionLogWriter.
type Params struct {
	FS             fs.MuxFS
	ServerInfoFile serverinfofile.ServerInfoFile
}

// SetupSessionLogWriter creates a writer that collects one Sorbet session's
// stderr in a human readable log file under the temp directory, so the editor
// can surface it to the user. The file path is published in the server info
// file until the writer is closed; the file itself is left behind for
// inspection after the session ends.
func SetupSessionLogWriter(p Params, root string) (io.WriteCloser, string, error) {
	logsDirPath := filepath.Join(p.FS.TempDir(), _logsDirName)
	if err := p.FS.MkdirAll(logsDirPath); err != nil {
		return nil, "", err
	}

	logFile, err := p.FS.TempFile(logsDirPath, fmt.Sprintf("sorbet-%s-*.log", rootToken(root)))
	if err != nil {
		return nil, "", err
	}

	// The editor tails the file by reading its path from the server info file.
	infoKey := fmt.Sprintf(_fmtSessionLogKey, root)
	if err := p.ServerInfoFile.UpdateField(infoKey, logFile.Name()); err != nil {
		logFile.Close()
		return nil, "", err
	}

	// Write via a logger for formatting, timestamp, and performance/buffering.
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(logFile),
		zap.InfoLevel,
	)
	sessionLogger := zap.New(core).Sugar()

	writer := &loggerWriter{
		logger: sessionLogger,
		close: func() error {
			sessionLogger.Sync()
			err := logFile.Close()
			if delErr := p.ServerInfoFile.DeleteField(infoKey); delErr != nil && err == nil {
				err = delErr
			}
			return err
		},
	}
	return writer, logFile.Name(), nil
}

// rootToken derives a short stable token from the root to keep concurrent
// sessions' log files distinguishable at a glance.
func rootToken(root string) string {
	h := fnv.New32a()
	h.Write([]byte(root))
	return fmt.Sprintf("%08x", h.Sum32())
}

type loggerWriter struct {
	logger *zap.SugaredLogger
	close  func() error
}

// Write implements the io.Writer interface by sending data to the given logger.
func (o *loggerWriter) Write(p []byte) (n int, err error) {
	// Incoming data may contain multiple lines, including blank ones.
	// Split and log each line individually.
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if len(line) > 0 {
			o.logger.Info(line)
		}
	}

	return len(p), nil
}

// Close flushes and closes the log file and withdraws it from the server info file.
func (o *loggerWriter) Close() error {
	return o.close()
}
