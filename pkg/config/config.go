package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DSN renders the lib/pq keyword/value connection string.
func (c DBConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	if secs := int(c.ConnectTimeout.Seconds()); secs > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", secs)
	}
	return dsn
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled is false when no address is configured; events are then dropped.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type AppConfig struct {
	Addr            string
	StorageDriver   string
	LogDir          string
	DefaultCurrency string
	WalletRetries   int
	StockRetries    int
	LockTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
}

// Load reads config.env when present, then the process environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	app, err := loadApp()
	if err != nil {
		return nil, err
	}

	cfg := &Config{App: *app}

	if app.StorageDriver == StorageDriverPostgres {
		db, err := LoadConfigDB()
		if err != nil {
			return nil, err
		}
		cfg.DB = *db
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	cfg.Redis = RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	return cfg, nil
}

func loadApp() (*AppConfig, error) {
	walletRetries, err := intEnv("WALLET_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	stockRetries, err := intEnv("STOCK_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	lockTimeout, err := durationEnv("DB_LOCK_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := durationEnv("SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	driver := stringEnv("STORAGE_DRIVER", StorageDriverPostgres)
	if driver != StorageDriverPostgres && driver != StorageDriverMemory {
		return nil, fmt.Errorf("invalid STORAGE_DRIVER: %q", driver)
	}
	if walletRetries < 1 || stockRetries < 1 {
		return nil, fmt.Errorf("retry counts must be at least 1")
	}

	return &AppConfig{
		Addr:            stringEnv("HTTP_ADDR", ":8080"),
		StorageDriver:   driver,
		LogDir:          stringEnv("LOG_DIR", "logs"),
		DefaultCurrency: stringEnv("WALLET_CURRENCY", "INR"),
		WalletRetries:   walletRetries,
		StockRetries:    stockRetries,
		LockTimeout:     lockTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

func LoadConfigDB() (*DBConfig, error) {
	port, err := strconv.Atoi(os.Getenv("DB_PORT"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := intEnv("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, err
	}

	maxIdle, err := intEnv("DB_MAX_IDLE_CONNS", 25)
	if err != nil {
		return nil, err
	}

	maxLifetime, err := durationEnv("DB_CONN_MAX_LIFETIME", 2*time.Hour)
	if err != nil {
		return nil, err
	}

	maxIdleTime, err := durationEnv("DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	connectTimeout, err := durationEnv("DB_CONNECT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	if maxIdle > maxOpen && maxOpen > 0 {
		maxIdle = maxOpen
	}

	return &DBConfig{
		Host:         os.Getenv("DB_HOST"),
		Port:         port,
		User:         os.Getenv("DB_USER"),
		Password:     os.Getenv("DB_PASSWORD"),
		Name:         os.Getenv("DB_NAME"),
		SSLMode:      stringEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: maxOpen,
		MaxIdleConns: maxIdle,

		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
		ConnectTimeout:  connectTimeout,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
