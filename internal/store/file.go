package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Mutter0815/quotamailer/internal/campaign"
)

const sentLogTimeLayout = "2006-01-02 15:04:05"

// FileStore keeps the sent log and the unsubscribe list as plain text files.
// The sent log is only ever appended to.
type FileStore struct {
	SentLogPath     string
	UnsubscribePath string
}

func NewFile(sentLogPath, unsubscribePath string) *FileStore {
	return &FileStore{SentLogPath: sentLogPath, UnsubscribePath: unsubscribePath}
}

// LoadSentAddresses reads "timestamp,recipient,sender" lines. Lines without a
// separator are ignored.
func (s *FileStore) LoadSentAddresses(ctx context.Context) (map[string]struct{}, error) {
	sent := make(map[string]struct{})
	err := scanLines(s.SentLogPath, func(line string) {
		if !strings.Contains(line, ",") {
			return
		}
		parts := strings.Split(strings.TrimSpace(line), ",")
		if len(parts) < 2 {
			return
		}
		if addr := strings.TrimSpace(parts[1]); addr != "" {
			sent[addr] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

// RecordSend appends one line and fsyncs before returning.
func (s *FileStore) RecordSend(ctx context.Context, rec campaign.SentRecord) error {
	f, err := os.OpenFile(s.SentLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sent log: %w", err)
	}
	line := fmt.Sprintf("%s,%s,%s\n", rec.Timestamp.UTC().Format(sentLogTimeLayout), rec.RecipientEmail, rec.SenderEmail)
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("append sent log: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync sent log: %w", err)
	}
	return f.Close()
}

func (s *FileStore) LoadUnsubscribes(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	err := scanLines(s.UnsubscribePath, func(line string) {
		if addr := NormalizeAddress(line); addr != "" {
			out[addr] = struct{}{}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanLines calls fn for every line of path. A missing file is created empty.
func scanLines(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return createEmpty(path)
	}
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrCorrupt, path, err)
	}
	defer f.Close()

	rd := bufio.NewReader(f)
	for {
		line, err := rd.ReadString('\n')
		if line != "" {
			fn(strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrCorrupt, path, err)
		}
	}
}

func createEmpty(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}
