package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/feelsunbreeze/docsdb_marks/internal/docsdb"
	"github.com/feelsunbreeze/docsdb_marks/internal/marks"
	"github.com/joho/godotenv"
)

// Config holds the settings that can come from the environment or a .env
// file. Command-line flags override them.
type Config struct {
	// DoC's DB endpoint, ending in the directory that holds the .cgi scripts
	URL string

	// Default login, and an optional password for unattended runs
	Username string
	Password string

	// Suffix stripped from class list emails to get CCIDs
	EmailSuffix string

	// Spreadsheet column names
	CCIDColumn  string
	ScoreColumn string

	LogLevel string
}

// Load reads .env (if present) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env file is not an error
	_ = godotenv.Load(envFiles...)

	cfg := &Config{
		URL:         getEnv("DOCSDB_URL", docsdb.DEFAULT_URL),
		Username:    os.Getenv("DOCSDB_USERNAME"),
		Password:    os.Getenv("DOCSDB_PASSWORD"),
		EmailSuffix: getEnv("DOCSDB_EMAIL_SUFFIX", docsdb.DEFAULT_EMAIL_SUFFIX),
		CCIDColumn:  getEnv("DOCSDB_CSV_CCID", marks.DefaultCCIDColumn),
		ScoreColumn: getEnv("DOCSDB_CSV_SCORE", marks.DefaultScoreColumn),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("DOCSDB_URL is not a valid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("DOCSDB_URL %q needs a scheme and a host", c.URL)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
