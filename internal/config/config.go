// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment keys.
const (
	EnvDB             = "NETTRAC_DB"
	EnvAddr           = "NETTRAC_ADDR"
	EnvLog            = "NETTRAC_LOG"
	EnvMaxUploadMB    = "NETTRAC_MAX_UPLOAD_MB"
	EnvMaxRowsPerFile = "NETTRAC_MAX_ROWS_PER_FILE"
	EnvLoginRate      = "NETTRAC_LOGIN_RATE"
	EnvLoginBurst     = "NETTRAC_LOGIN_BURST"
	EnvCookieSecure   = "NETTRAC_COOKIE_SECURE"
)

// Config holds runtime settings.
type Config struct {
	DBPath  string
	Addr    string
	LogPath string

	// MaxUploadBytes caps the body of an import request.
	MaxUploadBytes int64
	// MaxRowsPerFile caps data rows read from one CSV file. Zero disables the cap.
	MaxRowsPerFile int

	// LoginRate is the sustained login attempts per second per client IP.
	LoginRate  float64
	LoginBurst int

	CookieSecure bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DBPath:         "nettrac.sqlite3",
		Addr:           ":8080",
		MaxUploadBytes: 32 << 20,
		MaxRowsPerFile: 50000,
		LoginRate:      0.2,
		LoginBurst:     5,
	}
}

// Load reads a .env file from the working directory, if one exists, and then
// the process environment. Variables already set in the environment win over
// the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, starting from Default.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if v := getenv(EnvDB); v != "" {
		cfg.DBPath = v
	}
	if v := getenv(EnvAddr); v != "" {
		cfg.Addr = v
	}
	cfg.LogPath = getenv(EnvLog)

	if v := getenv(EnvMaxUploadMB); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil || mb <= 0 {
			return Config{}, fmt.Errorf("%s: invalid size %q", EnvMaxUploadMB, v)
		}
		cfg.MaxUploadBytes = mb << 20
	}
	if v := getenv(EnvMaxRowsPerFile); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%s: invalid row count %q", EnvMaxRowsPerFile, v)
		}
		cfg.MaxRowsPerFile = n
	}
	if v := getenv(EnvLoginRate); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 {
			return Config{}, fmt.Errorf("%s: invalid rate %q", EnvLoginRate, v)
		}
		cfg.LoginRate = r
	}
	if v := getenv(EnvLoginBurst); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("%s: invalid burst %q", EnvLoginBurst, v)
		}
		cfg.LoginBurst = n
	}
	if v := getenv(EnvCookieSecure); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: invalid boolean %q", EnvCookieSecure, v)
		}
		cfg.CookieSecure = b
	}

	return cfg, nil
}
