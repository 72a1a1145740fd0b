package config

import (
	"fmt"
	"net/url"
	"os"
)

// databaseURL resolves the connection string. DATABASE_URL wins; otherwise a
// Cloud SQL instance is reached through the unix socket Cloud Run mounts at
// /cloudsql/<instance>. Neither set means the in-memory store.
func databaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	socket := "/cloudsql/" + instance
	// No password means IAM database authentication.
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable", socket, user, password, name), nil
	}
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socket, user, name), nil
}

// Redacted returns the connection string with any password masked, for logging.
func (c DatabaseConfig) Redacted() string {
	if c.URL == "" {
		return "memory"
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" {
		return redactKeywordDSN(c.URL)
	}
	return u.Redacted()
}

func redactKeywordDSN(dsn string) string {
	out := []byte(dsn)
	const key = "password="
	for i := 0; i+len(key) <= len(out); i++ {
		if string(out[i:i+len(key)]) != key {
			continue
		}
		j := i + len(key)
		k := j
		for k < len(out) && out[k] != ' ' {
			k++
		}
		return string(out[:j]) + "xxxxx" + string(out[k:])
	}
	return dsn
}
