package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Mutter0815/quotamailer/internal/campaign"
)

type SMTPConfig struct {
	Host    string
	Port    int
	SSL     bool
	Timeout time.Duration
}

type Dispatcher struct {
	Accounts        []campaign.SenderAccount
	SMTP            SMTPConfig
	DailyLimit      int
	MinDelaySeconds int
	MaxDelaySeconds int

	RecipientsFile  string
	SentLogFile     string
	UnsubscribeFile string

	DBDSN       string
	RMQURL      string
	EventsQueue string
	StatusAddr  string
	Schedule    string
	DryRun      bool
}

// Load reads .env (if present) and the process environment. Credentials are
// not validated here; the engine rejects incomplete accounts before sending.
func Load() (Dispatcher, error) {
	_ = godotenv.Load()

	var (
		cfg Dispatcher
		err error
	)
	if cfg.DailyLimit, err = getInt("DAILY_LIMIT", 50); err != nil {
		return Dispatcher{}, err
	}
	if cfg.MinDelaySeconds, err = getInt("MIN_DELAY_SECONDS", 5); err != nil {
		return Dispatcher{}, err
	}
	if cfg.MaxDelaySeconds, err = getInt("MAX_DELAY_SECONDS", 15); err != nil {
		return Dispatcher{}, err
	}
	if cfg.SMTP.Port, err = getInt("SMTP_PORT", 465); err != nil {
		return Dispatcher{}, err
	}
	if cfg.SMTP.Timeout, err = getDuration("SMTP_TIMEOUT", 30*time.Second); err != nil {
		return Dispatcher{}, err
	}
	if cfg.DryRun, err = getBool("DRY_RUN", false); err != nil {
		return Dispatcher{}, err
	}

	cfg.SMTP.Host = getenv("SMTP_SERVER", "smtp.zoho.in")
	cfg.SMTP.SSL = os.Getenv("USE_SSL") != "false"
	cfg.RecipientsFile = getenv("RECIPIENTS_FILE", "recipients.csv")
	cfg.SentLogFile = getenv("SENT_LOG_FILE", "email_log.txt")
	cfg.UnsubscribeFile = getenv("UNSUBSCRIBE_FILE", "unsubscribed.txt")
	cfg.DBDSN = os.Getenv("DB_DSN")
	cfg.RMQURL = os.Getenv("RMQ_URL")
	cfg.EventsQueue = getenv("EVENTS_QUEUE", "send_events")
	cfg.StatusAddr = os.Getenv("STATUS_ADDR")
	cfg.Schedule = strings.TrimSpace(os.Getenv("CAMPAIGN_SCHEDULE"))
	cfg.Accounts = loadAccounts(cfg.DailyLimit)

	return cfg, nil
}

// loadAccounts collects SENDER_<n>_* triples starting at 1 until a slot with
// neither email nor password is found.
func loadAccounts(limit int) []campaign.SenderAccount {
	var out []campaign.SenderAccount
	for i := 1; ; i++ {
		prefix := "SENDER_" + strconv.Itoa(i) + "_"
		email := strings.TrimSpace(os.Getenv(prefix + "EMAIL"))
		pass := os.Getenv(prefix + "PASSWORD")
		if email == "" && pass == "" {
			return out
		}
		out = append(out, campaign.SenderAccount{
			Email:       email,
			Password:    pass,
			DisplayName: getenv(prefix+"NAME", email),
			DailyLimit:  limit,
		})
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	return n, nil
}

func getBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("env %s: %w", k, err)
	}
	return b, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("env %s: %w", k, err)
	}
	return d, nil
}
