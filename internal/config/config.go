package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENVIRONMENT" default:"development"`
	DBConnectionString string `envconfig:"DB_URL" required:"true"`

	// Gemini settings. When no API key is configured (directly or via Secret
	// Manager) the assistant runs in demo mode with scripted responses.
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	GCPProjectID     string `envconfig:"GCP_PROJECT_ID"`
	GeminiSecretName string `envconfig:"GEMINI_SECRET_NAME" default:"gemini-api-key"`

	// Upstream travel API settings.
	TravelAPIBaseURL string `envconfig:"TRAVEL_API_BASE_URL" default:"https://api.redbus.in/api"`
	TravelAPIKey     string `envconfig:"TRAVEL_API_KEY"`

	// Admission limits.
	DailyUserLimit   int `envconfig:"DAILY_USER_LIMIT" default:"5"`
	UserRequestLimit int `envconfig:"USER_REQUEST_LIMIT" default:"4"`
	AgentMaxTurns    int `envconfig:"AGENT_MAX_TURNS" default:"10"`

	// Booking event publishing. Leave the project ID empty to disable.
	BookingEventsTopic string `envconfig:"BOOKING_EVENTS_TOPIC" default:"booking-events"`

	// E-ticket notifier settings.
	ETicketQueueName           string `envconfig:"ETICKET_QUEUE_NAME" default:"eticket_queue"`
	ETicketDeadLetterQueueName string `envconfig:"ETICKET_DEAD_LETTER_QUEUE_NAME" default:"eticket_queue_dlq"`
	ETicketPollTimeoutSec      int    `envconfig:"ETICKET_POLL_TIMEOUT_SEC" default:"30"`
	ETicketPollMaxMsg          int    `envconfig:"ETICKET_POLL_MAX_MSG" default:"1"`
	ETicketMaxRetries          int    `envconfig:"ETICKET_MAX_RETRIES" default:"5"`
	ETicketBackoffInitialSec   int    `envconfig:"ETICKET_BACKOFF_INITIAL_SEC" default:"1"`
	ETicketBackoffMaxSec       int    `envconfig:"ETICKET_BACKOFF_MAX_SEC" default:"60"`
	ETicketWebhookURL          string `envconfig:"ETICKET_WEBHOOK_URL"`

	// Daily access ledger rows older than this many days are pruned nightly.
	AccessRetentionDays int `envconfig:"ACCESS_RETENTION_DAYS" default:"90"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
