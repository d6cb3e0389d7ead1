// Package config holds process settings loaded from the environment and the
// user-visible configuration tree persisted to disk.
package config

import "os"

// Settings holds process-level configuration.
type Settings struct {
	Workdir      string
	LogLevel     string
	CacheBackend string // "memory" | "redis"
	RedisURL     string
	EventStore   string // "memory" | "sqlite" | "postgres"
	DatabaseURL  string
}

// Load loads settings from environment variables.
func Load() *Settings {
	workdir := os.Getenv("MAILDECK_WORKDIR")
	if workdir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			workdir = home + "/.maildeck"
		} else {
			workdir = ".maildeck"
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	cacheBackend := os.Getenv("MAILDECK_CACHE")
	if cacheBackend == "" {
		cacheBackend = "memory"
	}

	eventStore := os.Getenv("MAILDECK_EVENT_STORE")
	if eventStore == "" {
		eventStore = "sqlite"
	}

	return &Settings{
		Workdir:      workdir,
		LogLevel:     logLevel,
		CacheBackend: cacheBackend,
		RedisURL:     os.Getenv("MAILDECK_REDIS_URL"),
		EventStore:   eventStore,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}
}
