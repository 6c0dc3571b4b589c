package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// SetupLogger настраивает глобальный logrus: текстовый формат, уровень и копию записей в файл.
// Возвращённый io.Closer закрывает файл журнала; при пустом cfg.File он ничего не делает.
func SetupLogger(cfg LogConfig) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
		if err != nil {
			return nopCloser{}, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)

	if cfg.File == "" {
		return nopCloser{}, nil
	}

	hook, err := NewFileHook(cfg.File)
	if err != nil {
		return nopCloser{}, err
	}
	log.AddHook(hook)
	return hook, nil
}

// FileHook дописывает каждую запись в файл журнала.
type FileHook struct {
	mu        sync.Mutex
	file      io.WriteCloser
	formatter log.Formatter
}

// NewFileHook открывает файл в режиме дозаписи.
func NewFileHook(path string) (*FileHook, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return newFileHook(file), nil
}

func newFileHook(w io.WriteCloser) *FileHook {
	return &FileHook{
		file:      w,
		formatter: &log.TextFormatter{FullTimestamp: true, DisableColors: true},
	}
}

func (h *FileHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *FileHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	_, err = h.file.Write(line)
	return err
}

// Close закрывает файл; после этого хук молча пропускает записи.
func (h *FileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
