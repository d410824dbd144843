package db

// Config describes the database connection. Type selects the dialect
// (postgres, mysql, sqlite); the lifetime/idle knobs are in seconds.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
