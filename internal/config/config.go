package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	CheckoutAPI CheckoutAPIConfig `yaml:"checkout_api"`
	Session     SessionConfig     `yaml:"session"`
	Auth        AuthConfig        `yaml:"auth"`
	Accounts    AccountsConfig    `yaml:"accounts"`
	Cache       CacheConfig       `yaml:"cache"`
	Events      EventsConfig      `yaml:"events"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type HTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type CheckoutAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	TickInterval         time.Duration `yaml:"tick_interval"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	MaxPollBackoff       time.Duration `yaml:"max_poll_backoff"`
	MaxTransientFailures int           `yaml:"max_transient_failures"`
	ManualConfirmEvery   time.Duration `yaml:"manual_confirm_every"`
	RetainTerminal       time.Duration `yaml:"retain_terminal"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	SessionTokenTTL time.Duration `yaml:"session_token_ttl"`
	LoginTokenTTL   time.Duration `yaml:"login_token_ttl"`
}

// AccountsConfig escolhe quem cria a conta na conversão: a própria API de
// checkout ("remote") ou a coleção de usuários no Firestore ("firestore").
type AccountsConfig struct {
	Provider   string `yaml:"provider"`
	ProjectID  string `yaml:"project_id"`
	DatabaseID string `yaml:"database_id"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// EventsConfig liga a publicação dos marcos das sessões. Sem brokers os
// eventos não são publicados.
type EventsConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	Topic        string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	ProviderRemote    = "remote"
	ProviderFirestore = "firestore"
)

func Default() Config {
	return Config{
		HTTP:        HTTPConfig{Port: 8080, AllowedOrigins: []string{"*"}},
		CheckoutAPI: CheckoutAPIConfig{BaseURL: "http://localhost:8090", Timeout: 15 * time.Second},
		Session: SessionConfig{
			TickInterval:         time.Second,
			PollInterval:         5 * time.Second,
			MaxPollBackoff:       time.Minute,
			MaxTransientFailures: 3,
			ManualConfirmEvery:   2 * time.Second,
			RetainTerminal:       10 * time.Minute,
			IdleTimeout:          30 * time.Minute,
		},
		Auth:     AuthConfig{SessionTokenTTL: 2 * time.Hour, LoginTokenTTL: 24 * time.Hour},
		Accounts: AccountsConfig{Provider: ProviderRemote},
		Cache:    CacheConfig{TTL: time.Hour},
		Events:   EventsConfig{Topic: "checkout.session-events"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load aplica, em ordem, os valores padrão, o arquivo YAML (se existir) e as
// variáveis de ambiente.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("ler arquivo de configuração %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("abrir arquivo de configuração %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	var err error
	cfg.HTTP.Port = envInt("PORT", cfg.HTTP.Port, &err)
	cfg.HTTP.AllowedOrigins = envCSV("ALLOWED_ORIGINS", cfg.HTTP.AllowedOrigins)
	cfg.CheckoutAPI.BaseURL = envOrDefault("CHECKOUT_API_URL", cfg.CheckoutAPI.BaseURL)
	cfg.CheckoutAPI.Timeout = envDuration("CHECKOUT_API_TIMEOUT", cfg.CheckoutAPI.Timeout, &err)
	cfg.Session.PollInterval = envDuration("SESSION_POLL_INTERVAL", cfg.Session.PollInterval, &err)
	cfg.Session.MaxPollBackoff = envDuration("SESSION_MAX_POLL_BACKOFF", cfg.Session.MaxPollBackoff, &err)
	cfg.Session.MaxTransientFailures = envInt("SESSION_MAX_TRANSIENT_FAILURES", cfg.Session.MaxTransientFailures, &err)
	cfg.Session.ManualConfirmEvery = envDuration("SESSION_MANUAL_CONFIRM_EVERY", cfg.Session.ManualConfirmEvery, &err)
	cfg.Session.IdleTimeout = envDuration("SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout, &err)
	cfg.Auth.JWTSecret = envOrDefault("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.SessionTokenTTL = envDuration("SESSION_TOKEN_TTL", cfg.Auth.SessionTokenTTL, &err)
	cfg.Accounts.Provider = envOrDefault("ACCOUNTS_PROVIDER", cfg.Accounts.Provider)
	cfg.Accounts.ProjectID = envOrDefault("FIRESTORE_PROJECT_ID", cfg.Accounts.ProjectID)
	cfg.Accounts.DatabaseID = envOrDefault("FIRESTORE_DATABASE_ID", cfg.Accounts.DatabaseID)
	cfg.Cache.RedisURL = envOrDefault("REDIS_URL", cfg.Cache.RedisURL)
	cfg.Cache.TTL = envDuration("CACHE_TTL", cfg.Cache.TTL, &err)
	cfg.Events.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.Events.KafkaBrokers)
	cfg.Events.Topic = envOrDefault("KAFKA_TOPIC", cfg.Events.Topic)
	cfg.Logging.Level = envOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("LOG_FORMAT", cfg.Logging.Format)
	return err
}

// Validate confere as combinações que impedem o servidor de subir.
func (c Config) Validate() error {
	var problems []string
	if c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET não definido")
	}
	if c.CheckoutAPI.BaseURL == "" {
		problems = append(problems, "CHECKOUT_API_URL não definido")
	}
	switch c.Accounts.Provider {
	case ProviderRemote:
	case ProviderFirestore:
		if c.Accounts.ProjectID == "" {
			problems = append(problems, "FIRESTORE_PROJECT_ID obrigatório com accounts.provider=firestore")
		}
	default:
		problems = append(problems, fmt.Sprintf("accounts.provider desconhecido: %q", c.Accounts.Provider))
	}
	if c.Session.PollInterval <= 0 || c.Session.TickInterval <= 0 {
		problems = append(problems, "intervalos da sessão devem ser positivos")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuração inválida: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int, errp *error) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errp = errors.Join(*errp, fmt.Errorf("%s: %w", name, err))
		return fallback
	}
	return v
}

// envDuration aceita "30s", "5m" ou um número inteiro de segundos.
func envDuration(name string, fallback time.Duration, errp *error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errp = errors.Join(*errp, fmt.Errorf("%s: %w", name, err))
		return fallback
	}
	return d
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	out := make([]string, 0)
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
