package config

import (
	"github.com/Netflix/go-env"
)

// Config carries all store locations explicitly; there is no process-wide
// default path. When PgDatabaseUrl is set the Postgres backend is used,
// otherwise the SQLite file.
type Config struct {
	SQLiteFile    string `env:"TIDELAKE_SQLITE_FILE,default=tidelake.db"`
	PgDatabaseUrl string `env:"DATABASE_URL"`
	KeySpecFile   string `env:"TIDELAKE_KEYSPEC_FILE"`
	LogLevel      string `env:"TIDELAKE_LOG_LEVEL,default=info"`
}

func NewConfig() (*Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
