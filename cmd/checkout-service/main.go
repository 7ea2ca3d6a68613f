package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/app"
)

const (
	envHTTPAddr       = "CHECKOUT_HTTP_ADDR"
	envOpsAddr        = "CHECKOUT_OPS_ADDR"
	envPostgresDSN    = "CHECKOUT_POSTGRES_DSN"
	envKafkaBrokers   = "CHECKOUT_KAFKA_BROKERS"
	envIdempotencyTTL = "CHECKOUT_IDEMPOTENCY_TTL"

	envCardpayBaseURL       = "CHECKOUT_CARDPAY_BASE_URL"
	envCardpayAPIKey        = "CHECKOUT_CARDPAY_API_KEY"
	envCardpayAPISecret     = "CHECKOUT_CARDPAY_API_SECRET"
	envCardpayWebhookSecret = "CHECKOUT_CARDPAY_WEBHOOK_SECRET"

	envUPIBaseURL      = "CHECKOUT_UPI_BASE_URL"
	envUPIClientID     = "CHECKOUT_UPI_CLIENT_ID"
	envUPIClientSecret = "CHECKOUT_UPI_CLIENT_SECRET"

	envShippingBaseURL = "CHECKOUT_SHIPPING_BASE_URL"
	envShippingAPIKey  = "CHECKOUT_SHIPPING_API_KEY"

	envSMTPHost     = "CHECKOUT_SMTP_HOST"
	envSMTPPort     = "CHECKOUT_SMTP_PORT"
	envSMTPUsername = "CHECKOUT_SMTP_USERNAME"
	envSMTPPassword = "CHECKOUT_SMTP_PASSWORD"
	envSMTPFrom     = "CHECKOUT_SMTP_FROM"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv формирует конфигурацию приложения. Некорректные значения
// не валят процесс: берётся значение по умолчанию, а предупреждение уходит
// в возвращаемый список.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	readString(lookup, envHTTPAddr, &cfg.HTTPAddr)
	readString(lookup, envOpsAddr, &cfg.OpsAddr)
	readString(lookup, envPostgresDSN, &cfg.PostgresDSN)
	readString(lookup, envKafkaBrokers, &cfg.KafkaBrokers)

	if raw, ok := lookup(envIdempotencyTTL); ok {
		ttl, err := parseDuration(raw, func(v time.Duration) bool { return v > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envIdempotencyTTL, err))
		} else {
			cfg.IdempotencyTTL = ttl
		}
	}

	readString(lookup, envCardpayBaseURL, &cfg.Cardpay.BaseURL)
	readString(lookup, envCardpayAPIKey, &cfg.Cardpay.APIKey)
	readString(lookup, envCardpayAPISecret, &cfg.Cardpay.APISecret)
	readString(lookup, envCardpayWebhookSecret, &cfg.Cardpay.WebhookSecret)

	readString(lookup, envUPIBaseURL, &cfg.UPI.BaseURL)
	readString(lookup, envUPIClientID, &cfg.UPI.ClientID)
	readString(lookup, envUPIClientSecret, &cfg.UPI.ClientSecret)

	readString(lookup, envShippingBaseURL, &cfg.Shipping.BaseURL)
	readString(lookup, envShippingAPIKey, &cfg.Shipping.APIKey)

	readString(lookup, envSMTPHost, &cfg.SMTP.Host)
	if raw, ok := lookup(envSMTPPort); ok {
		port, err := parseInt(raw, func(v int) bool { return v > 0 && v <= 65535 }, "must be a valid port")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envSMTPPort, err))
		} else {
			cfg.SMTP.Port = port
		}
	}
	readString(lookup, envSMTPUsername, &cfg.SMTP.Username)
	readString(lookup, envSMTPPassword, &cfg.SMTP.Password)
	readString(lookup, envSMTPFrom, &cfg.SMTP.From)

	return cfg, warnings
}

func readString(lookup envLookup, key string, dst *string) {
	if raw, ok := lookup(key); ok {
		if value := strings.TrimSpace(raw); value != "" {
			*dst = value
		}
	}
}

func parseInt(raw string, valid func(int) bool, constraint string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d rejected: %s", value, constraint)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s rejected: %s", value, constraint)
	}
	return value, nil
}

func main() {
	setupLogger()

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr": cfg.HTTPAddr,
		"ops_addr":  cfg.OpsAddr,
	}).Info("запускаем checkout service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("checkout service остановлен")
}
