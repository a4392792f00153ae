// Package logs wires up the logging surface: a combined all.log, an
// errors-only.log, and one log file per migrated table. File management
// itself (directory creation, rotation) is a thin wrapper over
// lumberjack; the interesting seam is that every component in this
// repository only ever depends on
// github.com/siddontang/loggers.Advanced, never on *logrus.Logger
// directly.
package logs

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// errorOnlyHook writes Error-level-and-above entries to a second writer,
// in addition to whatever output the base logger already has configured.
type errorOnlyHook struct {
	writer    *lumberjack.Logger
	formatter logrus.Formatter
}

func (h *errorOnlyHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *errorOnlyHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// New builds the top-level logger writing to {logsDir}/all.log, with a
// secondary hook mirroring errors to {logsDir}/errors-only.log.
func New(logsDir string, debug bool) *logrus.Logger {
	logger := logrus.New()
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	logger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(logsDir, "all.log"),
		MaxSize:    100, // MB
		MaxBackups: 5,
		Compress:   true,
	})
	logger.AddHook(&errorOnlyHook{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(logsDir, "errors-only.log"),
			MaxSize:    100,
			MaxBackups: 5,
			Compress:   true,
		},
		formatter: logger.Formatter,
	})
	return logger
}

// ForTable returns a logger dedicated to one table's log file
// ({logsDir}/{table}.log), sharing the parent's level and formatter.
func ForTable(parent *logrus.Logger, logsDir, tableName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(parent.GetLevel())
	logger.SetFormatter(parent.Formatter)
	logger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(logsDir, tableName+".log"),
		MaxSize:    100,
		MaxBackups: 5,
		Compress:   true,
	})
	return logger
}

// NotCreatedViewPath returns the artefact path for a view whose translated
// SQL failed to apply.
func NotCreatedViewPath(logsDir, viewName string) string {
	return filepath.Join(logsDir, "not_created_views", viewName+".sql")
}
