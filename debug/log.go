package debug

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	file *os.File
)

// LogPath returns ~/.config/notanalyzr/debug.log
func LogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "notanalyzr", "debug.log"), nil
}

// NewLogger returns a no-op logger unless enabled, in which case it logs
// every level to the debug log file, truncated on start.
func NewLogger(enabled bool) (*zap.Logger, error) {
	if !enabled {
		return zap.NewNop(), nil
	}
	path, err := LogPath()
	if err != nil {
		return zap.NewNop(), err
	}
	return NewFileLogger(path)
}

// NewFileLogger logs to path in console format. Close releases the file.
func NewFileLogger(path string) (*zap.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return zap.NewNop(), err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return zap.NewNop(), err
	}
	if file != nil {
		file.Close()
	}
	file = f

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(f), zapcore.DebugLevel)
	logger := zap.New(core, zap.AddCaller())
	logger.Debug("=== Debug logging started ===")
	return logger, nil
}

// Close flushes and closes the debug log file, if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Sync()
		file.Close()
		file = nil
	}
}
