package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mail transports
const (
	TransportSMTP   = "smtp"
	TransportResend = "resend"
)

// Config holds all application configuration
type Config struct {
	Mail          MailConfig
	Extraction    ExtractionConfig
	EPC           EPCConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	LogLevel      string
}

type MailConfig struct {
	IMAPHost     string
	IMAPPort     int
	IMAPUser     string
	IMAPPassword string
	IMAPMailbox  string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool

	Transport    string
	ResendAPIKey string
	FromEmail    string

	PollInterval time.Duration
	AttachXLSX   bool
	// SendRate is the maximum number of replies per minute.
	SendRate int
}

type ExtractionConfig struct {
	PdftoppmPath  string
	PdftotextPath string
	DPIs          []int
	TextFallback  bool
}

type EPCConfig struct {
	BIC      string
	QRSizePx int
}

type StorageConfig struct {
	LocalPath      string
	ArchiveEnabled bool
}

type DatabaseConfig struct {
	// URL is a pgx connection string. Empty disables the ledger.
	URL string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// Load reads configuration from environment variables, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	dpis, err := getEnvAsIntList("RENDER_DPIS", []int{300, 400, 600})
	if err != nil {
		return nil, err
	}

	imapUser := getEnv("IMAP_USER", "")
	cfg := &Config{
		Mail: MailConfig{
			IMAPHost:     getEnv("IMAP_HOST", ""),
			IMAPPort:     getEnvAsInt("IMAP_PORT", 993),
			IMAPUser:     imapUser,
			IMAPPassword: getEnv("IMAP_PASSWORD", ""),
			IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPUseTLS:   getEnvAsBool("SMTP_USE_TLS", true),
			Transport:    strings.ToLower(getEnv("MAIL_TRANSPORT", TransportSMTP)),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			FromEmail:    getEnv("FROM_EMAIL", imapUser),
			PollInterval: getEnvAsDuration("POLL_INTERVAL", 60*time.Second),
			AttachXLSX:   getEnvAsBool("MAIL_ATTACH_XLSX", false),
			SendRate:     getEnvAsInt("MAIL_SEND_RATE", 30),
		},
		Extraction: ExtractionConfig{
			PdftoppmPath:  getEnv("PDFTOPPM_PATH", "pdftoppm"),
			PdftotextPath: getEnv("PDFTOTEXT_PATH", "pdftotext"),
			DPIs:          dpis,
			TextFallback:  getEnvAsBool("TEXT_FALLBACK", true),
		},
		EPC: EPCConfig{
			BIC:      getEnv("EPC_BIC", ""),
			QRSizePx: getEnvAsInt("QR_SIZE_PX", 400),
		},
		Storage: StorageConfig{
			LocalPath:      getEnv("STORAGE_LOCAL_PATH", "./data/archive"),
			ArchiveEnabled: getEnvAsBool("ARCHIVE_ENABLED", false),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if cfg.Mail.Transport != TransportSMTP && cfg.Mail.Transport != TransportResend {
		return nil, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.Mail.Transport)
	}

	return cfg, nil
}

// ValidateMail checks the keys the mailbox worker cannot run without. All
// missing keys are reported together.
func (c *Config) ValidateMail() error {
	required := map[string]string{
		"IMAP_HOST":     c.Mail.IMAPHost,
		"IMAP_USER":     c.Mail.IMAPUser,
		"IMAP_PASSWORD": c.Mail.IMAPPassword,
	}
	order := []string{"IMAP_HOST", "IMAP_USER", "IMAP_PASSWORD"}

	if c.Mail.UseResend() {
		required["RESEND_API_KEY"] = c.Mail.ResendAPIKey
		order = append(order, "RESEND_API_KEY")
	} else {
		required["SMTP_HOST"] = c.Mail.SMTPHost
		required["SMTP_USER"] = c.Mail.SMTPUser
		required["SMTP_PASSWORD"] = c.Mail.SMTPPassword
		order = append(order, "SMTP_HOST", "SMTP_USER", "SMTP_PASSWORD")
	}

	var errs []error
	for _, key := range order {
		if strings.TrimSpace(required[key]) == "" {
			errs = append(errs, fmt.Errorf("missing required env: %s", key))
		}
	}
	if c.Mail.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// UseResend reports whether replies go through the Resend API.
func (m *MailConfig) UseResend() bool {
	return m.Transport == TransportResend
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool also accepts yes/no and on/off.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	switch valueStr {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts a Go duration ("90s", "2m") or a bare number of
// seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	return defaultValue
}

func getEnvAsIntList(key string, defaultValue []int) ([]int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}

	var out []int
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s entry %q", key, part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultValue, nil
	}
	return out, nil
}
