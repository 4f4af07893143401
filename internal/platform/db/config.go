package db

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"LIBRIS-backend/internal/circulation/policy"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// ログイン試行の制限（IP単位, 毎秒）
	LoginRate  float64 `yaml:"login_rate"`
	LoginBurst int     `yaml:"login_burst"`
	// 初回起動用の管理者（環境変数からのみ）
	AdminID       string `yaml:"-"`
	AdminPassword string `yaml:"-"`
}

// LibraryConfig: 貸出ルール
type LibraryConfig struct {
	BorrowPeriodDays    int           `yaml:"borrow_period_days"`
	FinePerDay          string        `yaml:"fine_per_day"`
	MaxBooksPerUser     int           `yaml:"max_books_per_user"`
	ReservationHoldDays int           `yaml:"reservation_hold_days"`
	SweepInterval       time.Duration `yaml:"reservation_sweep_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AuditConfig struct {
	// mysql | kafka | log
	Sink  string      `yaml:"sink"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type NotifyConfig struct {
	// 空なら slog に出すだけ
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	Channel       string `yaml:"channel"`
	InboxSize     int    `yaml:"inbox_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Server      ServerConfig   `yaml:"server"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Auth        AuthConfig     `yaml:"auth"`
	Library     LibraryConfig  `yaml:"library"`
	Audit       AuditConfig    `yaml:"audit"`
	Notify      NotifyConfig   `yaml:"notify"`
	Log         LogConfig      `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// .env は任意（無ければ環境変数だけ見る）
	_ = godotenv.Load()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Mode:   "dev",
		Server: ServerConfig{Addr: ":8443"},
		DB:     DatabaseConfig{Host: "127.0.0.1", Port: 3306},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			LoginRate:  1,
			LoginBurst: 5,
		},
		Library: LibraryConfig{
			BorrowPeriodDays:    policy.DefaultBorrowPeriodDays,
			FinePerDay:          policy.DefaultFinePerDay,
			MaxBooksPerUser:     policy.DefaultMaxBooksPerUser,
			ReservationHoldDays: policy.DefaultReservationHoldDays,
			SweepInterval:       10 * time.Minute,
		},
		Audit:  AuditConfig{Sink: "mysql", Kafka: KafkaConfig{Topic: "library.audit"}},
		Notify: NotifyConfig{Channel: "library:notifications", InboxSize: 50},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// 秘密情報は yaml に置かず環境変数で上書きする
func applyEnv(cfg *Config) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_ID"); v != "" {
		cfg.Auth.AdminID = v
		cfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Notify.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Notify.RedisPassword = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers := strings.Split(v, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		cfg.Audit.Kafka.Brokers = brokers
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MAX_BOOKS_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Library.MaxBooksPerUser = n
		}
	}
}

// Validate collects every problem instead of stopping at the first one.
func (c *Config) Validate() error {
	var errs []string

	if c.Mode != "dev" && c.Mode != "release" {
		errs = append(errs, "mode must be dev or release")
	}
	if c.Library.BorrowPeriodDays <= 0 {
		errs = append(errs, "library.borrow_period_days must be > 0")
	}
	if c.Library.MaxBooksPerUser <= 0 {
		errs = append(errs, "library.max_books_per_user must be > 0")
	}
	if c.Library.ReservationHoldDays <= 0 {
		errs = append(errs, "library.reservation_hold_days must be > 0")
	}
	if fine, err := decimal.NewFromString(c.Library.FinePerDay); err != nil || fine.IsNegative() {
		errs = append(errs, "library.fine_per_day must be a non-negative decimal")
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "auth.jwt_secret should be at least 32 characters long")
	}
	switch c.Audit.Sink {
	case "mysql", "log":
	case "kafka":
		if len(c.Audit.Kafka.Brokers) == 0 {
			errs = append(errs, "audit.kafka.brokers is required when audit.sink is kafka")
		}
	default:
		errs = append(errs, "audit.sink must be one of: mysql, kafka, log")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, "log.format must be text or json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Policy converts the library section into circulation rules.
func (c *Config) Policy() (policy.Policy, error) {
	fine, err := decimal.NewFromString(c.Library.FinePerDay)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("invalid fine_per_day %q: %w", c.Library.FinePerDay, err)
	}
	return policy.Policy{
		BorrowPeriod:    policy.Days(c.Library.BorrowPeriodDays),
		FinePerDay:      fine,
		MaxBooksPerUser: c.Library.MaxBooksPerUser,
		ReservationHold: policy.Days(c.Library.ReservationHoldDays),
	}, nil
}
