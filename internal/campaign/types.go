package campaign

import "time"

type Recipient struct {
	Name    string `csv:"name"`
	Email   string `csv:"email"`
	Subject string `csv:"subject"`
	Body    string `csv:"body"`
}

type SenderAccount struct {
	Email       string
	Password    string
	DisplayName string
	DailyLimit  int
}

type SentRecord struct {
	Timestamp      time.Time
	RecipientEmail string
	SenderEmail    string
}

// Message is what a Transport delivers: a composed body plus the sender identity.
type Message struct {
	FromIdentity    string
	FromDisplayName string
	To              string
	Subject         string
	HTMLBody        string
	Headers         map[string]string
}

type SendEvent struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`
	Sender    string    `json:"sender"`
}

type AccountReport struct {
	Email string `json:"email"`
	Sent  int    `json:"sent"`
	Limit int    `json:"limit"`
}

type Report struct {
	RunID               string          `json:"run_id"`
	State               string          `json:"state"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          time.Time       `json:"finished_at"`
	Accounts            []AccountReport `json:"accounts"`
	Recipients          int             `json:"recipients"`
	SkippedSent         int             `json:"skipped_sent"`
	SkippedUnsubscribed int             `json:"skipped_unsubscribed"`
	SkippedInvalid      int             `json:"skipped_invalid"`
	Failed              int             `json:"failed"`
}

// TotalSent sums successful sends across all accounts.
func (r Report) TotalSent() int {
	n := 0
	for _, a := range r.Accounts {
		n += a.Sent
	}
	return n
}
