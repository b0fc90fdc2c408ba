package platform

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Hook copies every entry into <logPath>/<date>/<fileName>.log and rolls the
// file when the date changes.
type Hook struct {
	mu       sync.Mutex
	writer   *os.File
	logPath  string
	fileName string
	fileDate string
	now      func() time.Time
}

func NewHook(logPath, fileName string) *Hook {
	return &Hook{logPath: logPath, fileName: fileName, now: time.Now}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	date := h.now().Format("2006-01-02")
	// switch to the file of the new day
	if h.writer == nil || h.fileDate != date {
		if h.writer != nil {
			h.writer.Close()
		}
		dir := filepath.Join(h.logPath, date)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			h.writer = nil
			return err
		}
		w, err := os.OpenFile(filepath.Join(dir, h.fileName+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
		if err != nil {
			h.writer = nil
			return err
		}
		h.writer, h.fileDate = w, date
	}
	_, err = h.writer.Write(line)
	return err
}

func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writer == nil {
		return nil
	}
	err := h.writer.Close()
	h.writer = nil
	return err
}

type LogFormatter struct {
}

func (m *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(b, "[%s] [%s] %s", timestamp, entry.Level, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// InitLogger builds the application logger: formatted lines on stderr and in
// the daily file under logPath. An empty logPath logs to stderr only.
func InitLogger(logPath, fileName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&LogFormatter{})
	logger.SetOutput(os.Stderr)
	if logPath != "" {
		logger.AddHook(NewHook(logPath, fileName))
	}
	return logger
}
