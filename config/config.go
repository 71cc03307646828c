/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT             = "5001"
	DEFAULT_MPESA_BASE_URL   = "https://sandbox.safaricom.co.ke"
	DEFAULT_TRANSACTION_TYPE = "CustomerPayBillOnline"
	DEFAULT_ACCOUNT_REF      = "STKPUSH"
	DEFAULT_STATUS_QUEUE     = "stkpush:status"
	DEFAULT_MONITORING_PORT  = "5004"
	DEFAULT_RECAPTCHA_URL    = "https://www.google.com/recaptcha/api/siteverify"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"STKPUSH_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"STKPUSH_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"STKPUSH_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"STKPUSH_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"STKPUSH_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"STKPUSH_SERVER_PORT"`
}

type MpesaConfig struct {
	BaseURL                  string `json:"base_url" envconfig:"MPESA_BASE_API_URL"`
	ShortCode                string `json:"short_code" envconfig:"SHORTCODE"`
	ConsumerKey              string `json:"consumer_key" envconfig:"CONSUMER_KEY"`
	ConsumerSecret           string `json:"consumer_secret" envconfig:"CONSUMER_SECRET"`
	Passkey                  string `json:"passkey" envconfig:"PASSKEY"`
	CallbackURL              string `json:"callback_url" envconfig:"CALLBACK_URL"`
	TransactionType          string `json:"transaction_type" envconfig:"TRANS_TYPE"`
	PartyB                   string `json:"party_b" envconfig:"PARTY_B"`
	AccountReference         string `json:"account_reference" envconfig:"STKPUSH_ACCOUNT_REFERENCE"`
	TimeoutSeconds           int    `json:"timeout_seconds" envconfig:"STKPUSH_MPESA_TIMEOUT_SECONDS"`
	TokenSafetyMarginSeconds int    `json:"token_safety_margin_seconds" envconfig:"STKPUSH_TOKEN_SAFETY_MARGIN_SECONDS"`
	QueryMaxAttempts         int    `json:"query_max_attempts" envconfig:"STKPUSH_QUERY_MAX_ATTEMPTS"`
	QueryRetryDelaySeconds   int    `json:"query_retry_delay_seconds" envconfig:"STKPUSH_QUERY_RETRY_DELAY_SECONDS"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"STKPUSH_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"STKPUSH_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"STKPUSH_REDIS_SKIP_TLS_VERIFY"`
	Channel       string `json:"channel" envconfig:"STKPUSH_REDIS_CHANNEL"`
}

type RecaptchaConfig struct {
	SecretKey string `json:"secret_key" envconfig:"STKPUSH_RECAPTCHA_SECRET_KEY"`
	VerifyURL string `json:"verify_url" envconfig:"STKPUSH_RECAPTCHA_VERIFY_URL"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"STKPUSH_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"STKPUSH_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"STKPUSH_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type StreamConfig struct {
	KeepAliveSeconds int `json:"keep_alive_seconds" envconfig:"STKPUSH_STREAM_KEEP_ALIVE_SECONDS"`
}

type QueueConfig struct {
	StatusQueue             string `json:"status_queue" envconfig:"STKPUSH_STATUS_QUEUE"`
	StatusCheckDelaySeconds int    `json:"status_check_delay_seconds" envconfig:"STKPUSH_STATUS_CHECK_DELAY_SECONDS"`
	StatusCheckMaxRetry     int    `json:"status_check_max_retry" envconfig:"STKPUSH_STATUS_CHECK_MAX_RETRY"`
	MonitoringPort          string `json:"monitoring_port" envconfig:"STKPUSH_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"STKPUSH_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"STKPUSH_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"STKPUSH_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	Mpesa           MpesaConfig      `json:"mpesa"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Recaptcha       RecaptchaConfig  `json:"recaptcha"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Stream          StreamConfig     `json:"stream"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration

	// a .env file is optional; real environment variables always win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("stkpush", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded. Create a json file called stkpush.json or set the environment variables ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "STK Push Bridge"
	}

	cnf.Mpesa.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Mpesa.BaseURL), "/")
	cnf.Mpesa.ShortCode = strings.TrimSpace(cnf.Mpesa.ShortCode)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)

	required := []struct {
		value string
		name  string
	}{
		{cnf.Mpesa.ShortCode, "mpesa short code"},
		{cnf.Mpesa.ConsumerKey, "mpesa consumer key"},
		{cnf.Mpesa.ConsumerSecret, "mpesa consumer secret"},
		{cnf.Mpesa.Passkey, "mpesa passkey"},
		{cnf.Mpesa.CallbackURL, "mpesa callback url"},
		{cnf.DataSource.Dns, "data source DNS"},
	}
	for _, r := range required {
		if r.value == "" {
			log.Printf("Error: %s is empty. It's a required field.", r.name)
			return errors.New(r.name + " is required")
		}
	}

	if cnf.Mpesa.BaseURL == "" {
		cnf.Mpesa.BaseURL = DEFAULT_MPESA_BASE_URL
	}
	if cnf.Mpesa.TransactionType == "" {
		cnf.Mpesa.TransactionType = DEFAULT_TRANSACTION_TYPE
	}
	if cnf.Mpesa.PartyB == "" {
		cnf.Mpesa.PartyB = cnf.Mpesa.ShortCode
	}
	if cnf.Mpesa.AccountReference == "" {
		cnf.Mpesa.AccountReference = DEFAULT_ACCOUNT_REF
	}
	if cnf.Mpesa.TimeoutSeconds <= 0 {
		cnf.Mpesa.TimeoutSeconds = 30
	}
	if cnf.Mpesa.TokenSafetyMarginSeconds <= 0 {
		cnf.Mpesa.TokenSafetyMarginSeconds = 600
	}
	if cnf.Mpesa.QueryMaxAttempts <= 0 {
		cnf.Mpesa.QueryMaxAttempts = 3
	}
	if cnf.Mpesa.QueryRetryDelaySeconds <= 0 {
		cnf.Mpesa.QueryRetryDelaySeconds = 10
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Redis.Channel == "" {
		cnf.Redis.Channel = "stkpush:outcomes"
	}
	if cnf.Recaptcha.VerifyURL == "" {
		cnf.Recaptcha.VerifyURL = DEFAULT_RECAPTCHA_URL
	}
	if cnf.Stream.KeepAliveSeconds <= 0 {
		cnf.Stream.KeepAliveSeconds = 10
	}

	if cnf.Queue.StatusQueue == "" {
		cnf.Queue.StatusQueue = DEFAULT_STATUS_QUEUE
	}
	if cnf.Queue.StatusCheckDelaySeconds <= 0 {
		cnf.Queue.StatusCheckDelaySeconds = 60
	}
	if cnf.Queue.StatusCheckMaxRetry <= 0 {
		cnf.Queue.StatusCheckMaxRetry = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// KeepAlive is the idle window after which stream subscribers receive a keep-alive.
func (cnf *Configuration) KeepAlive() time.Duration {
	return time.Duration(cnf.Stream.KeepAliveSeconds) * time.Second
}

// RedisEnabled reports whether the optional Redis features (relay, status worker) are on.
func (cnf *Configuration) RedisEnabled() bool {
	return cnf.Redis.Dns != ""
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
