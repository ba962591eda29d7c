package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAPI(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "postgres://localhost/store")
		t.Setenv("MIDTRANS_SERVER_KEY", "SB-Mid-server-test")
		t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

		c, err := LoadAPI()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Port != "8081" {
			t.Errorf("expected port 8081, got %s", c.Port)
		}
		if c.AdminFee != 5000 {
			t.Errorf("expected admin fee 5000, got %d", c.AdminFee)
		}
		if c.PaymentExpiry != 15*time.Minute {
			t.Errorf("expected 15m expiry, got %s", c.PaymentExpiry)
		}
		if c.Timezone != "Asia/Jakarta" {
			t.Errorf("expected Asia/Jakarta, got %s", c.Timezone)
		}
		if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" {
			t.Errorf("unexpected brokers: %v", c.KafkaBrokers)
		}
	})

	t.Run("requires the server key", func(t *testing.T) {
		t.Setenv("POSTGRES_URL", "postgres://localhost/store")
		t.Setenv("MIDTRANS_SERVER_KEY", "unused")
		_ = os.Unsetenv("MIDTRANS_SERVER_KEY")

		if _, err := LoadAPI(); err == nil {
			t.Error("expected error when MIDTRANS_SERVER_KEY is missing")
		}
	})
}

func TestLoadGateway(t *testing.T) {
	t.Setenv("API_SERVICE_URL", "http://api:8081")
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("RATE_LIMIT_RPS", "5")

	c, err := LoadGateway()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.RateLimit != 5 {
		t.Errorf("expected rate limit 5, got %d", c.RateLimit)
	}
	if c.RateBurst != 40 {
		t.Errorf("expected burst 40, got %d", c.RateBurst)
	}
}

func TestLoadMailer(t *testing.T) {
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.5")

	c, err := LoadMailer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Port != "8084" {
		t.Errorf("expected port 8084, got %s", c.Port)
	}
	if c.SMTPAddr != "" {
		t.Errorf("expected no smtp relay by default, got %s", c.SMTPAddr)
	}
	if c.SampleRatio != 0.5 {
		t.Errorf("expected sample ratio 0.5, got %v", c.SampleRatio)
	}
	if c.OTLPEndpoint != "localhost:4317" {
		t.Errorf("expected default otlp endpoint, got %s", c.OTLPEndpoint)
	}
}
