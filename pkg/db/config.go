package db

// Config describes how to reach the primary database.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

// IsSQLite reports whether the configured dialect is SQLite.
func (c Config) IsSQLite() bool {
	return c.Type == "sqlite"
}
