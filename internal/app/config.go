package app

import (
	"time"
)

// Config описывает настройки запуска приложения.
type Config struct {
	// HTTPAddr — адрес публичного API.
	HTTPAddr string
	// OpsAddr — адрес служебного листенера (метрики и health checks).
	OpsAddr string

	// PostgresDSN — строка подключения к PostgreSQL. Пустая строка означает
	// in-memory хранилище (локальная разработка и тесты).
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую. Пустая строка отключает
	// публикацию событий.
	KafkaBrokers string

	// IdempotencyTTL — срок хранения idempotency ключей.
	IdempotencyTTL time.Duration

	Cardpay  CardpayConfig
	UPI      UPIConfig
	Shipping ShippingConfig
	SMTP     SMTPConfig
}

// CardpayConfig — доступ к API провайдера cardpay.
type CardpayConfig struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	WebhookSecret string
}

// UPIConfig — доступ к API UPI-провайдера.
type UPIConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// ShippingConfig — доступ к API сервиса доставки.
type ShippingConfig struct {
	BaseURL string
	APIKey  string
}

// SMTPConfig — параметры отправки писем-подтверждений.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// DefaultConfig возвращает базовые адреса и политику по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		OpsAddr:        ":9090",
		IdempotencyTTL: 24 * time.Hour,
	}
}

