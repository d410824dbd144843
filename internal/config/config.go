package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	LogFormat   string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr    string
	RedisChannel string

	// MetricsAddr is the listen address for the Prometheus scrape endpoint.
	// Set to "off" to disable it.
	MetricsAddr string

	// Daemons maps a lowercase currency code to its wallet daemon endpoint,
	// parsed from COINFLOW_DAEMONS ("btc=http://localhost:5000,ltc=http://localhost:5001").
	Daemons        map[string]string
	DaemonUser     string
	DaemonPassword string

	// Exchange adapter inputs.
	ExchangeCoins []string
	ExchangeFiats []string
	BinanceURL    string
	CoingeckoURL  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "coinflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "coinflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:    getenv("REDIS_ADDR", ""),
		RedisChannel: getenv("REDIS_CHANNEL", "coinflow.invoice_status"),

		MetricsAddr: getenv("METRICS_ADDR", ":2112"),

		Daemons:        parseDaemons(getenv("COINFLOW_DAEMONS", "btc=http://localhost:5000")),
		DaemonUser:     getenv("COINFLOW_DAEMON_USER", "electrum"),
		DaemonPassword: getenv("COINFLOW_DAEMON_PASSWORD", ""),

		ExchangeCoins: parseList(getenv("EXCHANGE_COINS", "BTC,LTC,ETH")),
		ExchangeFiats: parseList(getenv("EXCHANGE_FIATS", "USD,EUR")),
		BinanceURL:    getenv("BINANCE_URL", "https://api.binance.com"),
		CoingeckoURL:  getenv("COINGECKO_URL", "https://api.coingecko.com"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseDaemons(raw string) map[string]string {
	out := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		currency := strings.ToLower(strings.TrimSpace(parts[0]))
		endpoint := strings.TrimSpace(parts[1])
		if currency == "" || endpoint == "" {
			continue
		}
		out[currency] = endpoint
	}
	return out
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
