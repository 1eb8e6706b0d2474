package notification

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const defaultLogMaxSizeMB = 10

// logChannel appends one line per notification to a file. The file is opened
// per write so a long-running watch keeps rotating it.
type logChannel struct {
	path     string
	maxBytes int64
	mu       sync.Mutex
}

// NewLogNotificationChannel creates a channel writing to cfg.Path.
func NewLogNotificationChannel(cfg *LogNotificationConfig) NotificationChannel {
	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = defaultLogMaxSizeMB
	}
	return &logChannel{path: cfg.Path, maxBytes: int64(maxMB) << 20}
}

// formatLogLine renders "<UTC time> [TYPE] Title - Message", followed by any
// metadata as sorted key=value pairs in parentheses.
func formatLogLine(n Notification) string {
	var sb strings.Builder
	sb.WriteString(n.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(string(n.Type)))
	sb.WriteString("] ")
	sb.WriteString(n.Title)
	sb.WriteString(" - ")
	sb.WriteString(n.Message)

	if len(n.Metadata) > 0 {
		keys := make([]string, 0, len(n.Metadata))
		for k := range n.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + n.Metadata[k]
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(pairs, " "))
		sb.WriteString(")")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (c *logChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create notification log directory: %w", err)
	}
	if err := c.rotate(); err != nil {
		return err
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification log: %w", err)
	}
	if _, err := f.WriteString(formatLogLine(n)); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return f.Close()
}

// rotate moves a full log to <path>.old, replacing the previous one.
func (c *logChannel) rotate() error {
	info, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < c.maxBytes {
		return nil
	}
	if err := os.Rename(c.path, c.path+".old"); err != nil {
		return fmt.Errorf("failed to rotate notification log: %w", err)
	}
	return nil
}

func (c *logChannel) Close() error { return nil }

// ReadLog returns every line of the notification log. A missing file has no
// entries.
func ReadLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entries = append(entries, scanner.Text())
	}
	return entries, scanner.Err()
}
