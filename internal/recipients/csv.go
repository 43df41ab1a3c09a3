package recipients

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/Mutter0815/quotamailer/internal/campaign"
	"github.com/Mutter0815/quotamailer/pkg/logx"
)

var sampleRecipients = []campaign.Recipient{
	{Name: "Sample User", Email: "user@example.com", Subject: "Sample Subject", Body: "This is a sample email body."},
	{Name: "Another User", Email: "another@example.com", Subject: "Another Subject", Body: "This is another sample email body."},
}

// CSVSource reads recipients from a name,email,subject,body CSV file.
type CSVSource struct {
	Path string
}

func NewCSV(path string) *CSVSource { return &CSVSource{Path: path} }

// Load returns recipients in file order. When the file does not exist a
// two-row sample is written and no recipients are returned.
func (s *CSVSource) Load(ctx context.Context) ([]campaign.Recipient, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.writeSample(); err != nil {
			return nil, err
		}
		logx.L().Infow("sample_recipients_created", "path", s.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open recipients: %w", err)
	}
	defer f.Close()

	var out []campaign.Recipient
	if err := gocsv.UnmarshalFile(f, &out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse recipients %s: %w", s.Path, err)
	}
	for i := range out {
		out[i].Email = strings.TrimSpace(out[i].Email)
	}
	logx.L().Infow("recipients_loaded", "path", s.Path, "count", len(out))
	return out, nil
}

func (s *CSVSource) writeSample() error {
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create sample recipients: %w", err)
	}
	rows := append([]campaign.Recipient(nil), sampleRecipients...)
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return fmt.Errorf("write sample recipients: %w", err)
	}
	return f.Close()
}
