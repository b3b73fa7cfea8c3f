package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`

	// Messaging gateway settings (OTP delivery over SMS/WhatsApp)
	SMSGatewayURL string `envconfig:"SMS_GATEWAY_URL"`
	SMSGatewayKey string `envconfig:"SMS_GATEWAY_KEY"`
	SMSSenderID   string `envconfig:"SMS_SENDER_ID" default:"FixItForMe"`
	SMSChannel    string `envconfig:"SMS_CHANNEL" default:"sms"`

	// Stripe settings
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	StripePriceElevated   string `envconfig:"STRIPE_PRICE_ELEVATED" required:"true"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/settings"`

	// OTP settings
	OTPCodeLength         int    `envconfig:"OTP_CODE_LENGTH" default:"6"`
	OTPTTLSec             int    `envconfig:"OTP_TTL_SEC" default:"600"`
	OTPFixedCode          string `envconfig:"OTP_FIXED_CODE"`
	OTPRateLimitMax       int    `envconfig:"OTP_RATE_LIMIT_MAX" default:"5"`
	OTPRateLimitWindowSec int    `envconfig:"OTP_RATE_LIMIT_WINDOW_SEC" default:"900"`
	OTPSweepIntervalSec   int    `envconfig:"OTP_SWEEP_INTERVAL_SEC" default:"300"`

	// Analytics settings
	GCPProjectID   string `envconfig:"GCP_PROJECT_ID"`
	AnalyticsTopic string `envconfig:"ANALYTICS_TOPIC" default:"otp_events"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
