package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Tracing is shared by every binary.
type Tracing struct {
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	SampleRatio  float64 `envconfig:"OTEL_TRACES_SAMPLE_RATIO" default:"1"`
}

type API struct {
	Tracing
	Port               string        `envconfig:"PORT" default:"8081"`
	PostgresURL        string        `envconfig:"POSTGRES_URL" required:"true"`
	SearchPath         string        `envconfig:"POSTGRES_SCHEMA" default:"store"`
	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	RedisPassword      string        `envconfig:"REDIS_PASSWORD"`
	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS"`
	EventsTopic        string        `envconfig:"EVENTS_TOPIC" default:"transaction.events"`
	Timezone           string        `envconfig:"STORE_TIMEZONE" default:"Asia/Jakarta"`
	AdminFee           int64         `envconfig:"ADMIN_FEE" default:"5000"`
	MerchantName       string        `envconfig:"MERCHANT_NAME" default:"MyHMTK"`
	SnapBaseURL        string        `envconfig:"SNAP_BASE_URL" default:"https://app.sandbox.midtrans.com"`
	ServerKey          string        `envconfig:"MIDTRANS_SERVER_KEY" required:"true"`
	PaymentMethod      string        `envconfig:"PAYMENT_METHOD" default:"qris"`
	PaymentExpiry      time.Duration `envconfig:"PAYMENT_EXPIRY" default:"15m"`
	PaymentTimeout     time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"10s"`
	BreakerMaxFailures uint32        `envconfig:"PAYMENT_BREAKER_FAILURES" default:"5"`
	BreakerCooldown    time.Duration `envconfig:"PAYMENT_BREAKER_COOLDOWN" default:"30s"`
	ExpirySweep        time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"1m"`
}

type Worker struct {
	Tracing
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS" required:"true"`
	EventsTopic    string   `envconfig:"EVENTS_TOPIC" default:"transaction.events"`
	GroupID        string   `envconfig:"CONSUMER_GROUP" default:"notification-worker"`
	MailerURL      string   `envconfig:"MAILER_SERVICE_URL" required:"true"`
	StorefrontName string   `envconfig:"MERCHANT_NAME" default:"MyHMTK"`
}

type Gateway struct {
	Tracing
	Port      string `envconfig:"PORT" default:"8080"`
	APIURL    string `envconfig:"API_SERVICE_URL" required:"true"`
	APIKey    string `envconfig:"SECRET_KEY" required:"true"`
	RateLimit int    `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateBurst int    `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

type Mailer struct {
	Tracing
	Port     string `envconfig:"PORT" default:"8084"`
	Sender   string `envconfig:"MAIL_SENDER" default:"no_reply@mail.myhmtk.jeyy.xyz"`
	SMTPAddr string `envconfig:"SMTP_ADDR"`
}

func LoadAPI() (API, error) {
	var c API
	err := envconfig.Process("", &c)
	return c, err
}

func LoadWorker() (Worker, error) {
	var c Worker
	err := envconfig.Process("", &c)
	return c, err
}

func LoadGateway() (Gateway, error) {
	var c Gateway
	err := envconfig.Process("", &c)
	return c, err
}

func LoadMailer() (Mailer, error) {
	var c Mailer
	err := envconfig.Process("", &c)
	return c, err
}
