package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config is read from the environment (optionally seeded from a .env file).
type Config struct {
	WebListen            string `env:"WEB_LISTEN,default=0.0.0.0:3000"`
	HAProxyProxyProtocol bool   `env:"HAPROXY_PROXY_PROTOCOL,default=false"`
	APIKey               string `env:"API_KEY"`
	PublicURL            string `env:"PUBLIC_URL"`

	LogLevel     string `env:"LOG_LEVEL,default=info"`
	LokiURL      string `env:"LOKI_URL"`
	LokiUsername string `env:"LOKI_USERNAME"`
	LokiPassword string `env:"LOKI_PASSWORD"`

	MetricsListen string `env:"METRICS_LISTEN"`
	MetricsPath   string `env:"METRICS_PATH,default=/metrics"`

	MongoURI            string `env:"MONGODB_URI,default=mongodb://localhost:27017"`
	MongoDatabase       string `env:"MONGODB_DATABASE,default=bloodconnect"`
	DonorCollection     string `env:"MONGODB_DONOR_COLLECTION,default=donors"`
	MessageCollection   string `env:"MONGODB_MESSAGE_COLLECTION,default=whatsappMessages"`
	StatusLogCollection string `env:"MONGODB_STATUS_COLLECTION,default=whatsappStatusLogs"`

	PostgresDSN string `env:"POSTGRES_DSN"`
	AMQPURL     string `env:"AMQP_URL"`
	AMQPQueue   string `env:"AMQP_QUEUE,default=message_events"`

	RecordTimeout time.Duration `env:"RECORD_TIMEOUT,default=3s"`
	RecordBuffer  int           `env:"RECORD_BUFFER,default=1024"`

	TwilioAccountSID      string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken       string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber     string `env:"TWILIO_PHONE_NUMBER"`
	TwilioWhatsAppNumber  string `env:"TWILIO_WHATSAPP_NUMBER"`
	TwilioStatusCallback  string `env:"TWILIO_STATUS_CALLBACK_URL"`
	TwilioValidateWebhook bool   `env:"TWILIO_VALIDATE_WEBHOOKS,default=false"`

	Channel       string        `env:"CHANNEL,default=whatsapp"`
	Region        string        `env:"PHONE_REGION,default=IN"`
	CountryCode   string        `env:"PHONE_COUNTRY_CODE"`
	SendDelay     time.Duration `env:"DISPATCH_SEND_DELAY,default=100ms"`
	Concurrency   int           `env:"DISPATCH_CONCURRENCY,default=1"`
	BrandName     string        `env:"BRAND_NAME,default=NSS BloodConnect"`
	PortalURL     string        `env:"NEXT_PUBLIC_APP_URL,default=https://nss-blood-connect.vercel.app"`
	LookupTimeout time.Duration `env:"DIRECTORY_TIMEOUT,default=5s"`
}

// LoadConfig loads .env (if present) and then parses the environment.
func LoadConfig(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file. Using existing environment variables.")
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	cfg.Channel = strings.ToLower(strings.TrimSpace(cfg.Channel))
	switch cfg.Channel {
	case ChannelWhatsApp, ChannelSMS:
	default:
		return fmt.Errorf("unknown CHANNEL %q", cfg.Channel)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RecordBuffer < 1 {
		cfg.RecordBuffer = 1
	}
	if cfg.RecordTimeout <= 0 {
		return fmt.Errorf("RECORD_TIMEOUT must be positive")
	}
	if cfg.SendDelay < 0 {
		return fmt.Errorf("DISPATCH_SEND_DELAY must not be negative")
	}
	return nil
}

// SenderNumber is the provider number outbound messages are sent from. The WhatsApp channel
// falls back to the generic number when no dedicated one is set.
func (cfg Config) SenderNumber() string {
	if cfg.Channel == ChannelWhatsApp && cfg.TwilioWhatsAppNumber != "" {
		return cfg.TwilioWhatsAppNumber
	}
	return cfg.TwilioPhoneNumber
}
