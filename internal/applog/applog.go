// Package applog wires the component loggers used by the server and
// client binaries. It replaces the teacher's hand-rolled leveled logger
// with logrus, keeping the same "one logger per component" call-site
// shape (Server/Client/Handler). A file logger writes to a file named
// after the date the process opened it; it does not switch files when
// the date changes.
package applog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunID tags every log line emitted by this process invocation, so
// concurrent runs against the same log directory can be told apart.
var RunID = uuid.New().String()

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

func withComponent(component string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"component": component, "run_id": RunID})
}

// Component loggers, mirroring the teacher's package-level
// DefaultLogger/ClientLogger/ServerLogger globals.
var (
	Default = withComponent("default")
	Server  = withComponent("server")
	Client  = withComponent("client")
	Handler = withComponent("handler")
)

// NewFileLogger opens (creating if needed) a date-stamped log file under
// logDir and returns a component-tagged entry writing to it, plus the
// file so the caller can close it on shutdown.
func NewFileLogger(component, logDir string) (*logrus.Entry, *os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}
	path := filepath.Join(logDir, fmt.Sprintf("%s_%s.log", component, time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, nil, err
	}
	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger.WithFields(logrus.Fields{"component": component, "run_id": RunID}), f, nil
}
