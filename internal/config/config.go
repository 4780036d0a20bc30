package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	Port        string `json:"port"`
	SpecDir     string `json:"specDir"`
	DBURL       string `json:"dbUrl"`
	AutoMigrate bool   `json:"autoMigrate"`

	// Таймауты решателя: верификация и поиск контрпримеров
	SolverTimeout time.Duration `json:"-"`
	FinderTimeout time.Duration `json:"-"`

	LogLevel  string `json:"logLevel"`  // debug | info | warn | error
	LogFormat string `json:"logFormat"` // text | json
}

// в файле таймауты строками: "5s", "750ms"
type fileConfig struct {
	Config
	SolverTimeout string `json:"solverTimeout"`
	FinderTimeout string `json:"finderTimeout"`
}

func Default() Config {
	return Config{
		Port:          "8080",
		SpecDir:       "specs",
		DBURL:         "",
		AutoMigrate:   false,
		SolverTimeout: 5 * time.Second,
		FinderTimeout: 3 * time.Second,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

func loadJSON(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	fc := fileConfig{Config: base}
	if err := json.Unmarshal(b, &fc); err != nil {
		return base, fmt.Errorf("config %s: %w", path, err)
	}
	c := fc.Config
	if c.SolverTimeout, err = durationOr(fc.SolverTimeout, base.SolverTimeout); err != nil {
		return base, fmt.Errorf("config %s: solverTimeout: %w", path, err)
	}
	if c.FinderTimeout, err = durationOr(fc.FinderTimeout, base.FinderTimeout); err != nil {
		return base, fmt.Errorf("config %s: finderTimeout: %w", path, err)
	}
	return c, nil
}

func durationOr(s string, fallback time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	if d, err := durationOr(os.Getenv(k), fallback); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Load: значения по умолчанию, затем JSON (если файл есть), затем ENV.
// Флаги командной строки накладываются поверх в cmd.
func Load(jsonPath string) (Config, error) {
	cfg := Default()

	if jsonPath != "" {
		if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
			c2, err := loadJSON(jsonPath, cfg)
			if err != nil {
				return cfg, err
			}
			cfg = c2
		}
	}

	cfg.Port = getenv("SPECPROOF_PORT", cfg.Port)
	cfg.SpecDir = getenv("SPECPROOF_SPEC_DIR", cfg.SpecDir)
	cfg.DBURL = getenv("SPECPROOF_DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("SPECPROOF_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.SolverTimeout = getenvDuration("SPECPROOF_SOLVER_TIMEOUT", cfg.SolverTimeout)
	cfg.FinderTimeout = getenvDuration("SPECPROOF_FINDER_TIMEOUT", cfg.FinderTimeout)
	cfg.LogLevel = getenv("SPECPROOF_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("SPECPROOF_LOG_FORMAT", cfg.LogFormat)

	return cfg, nil
}

// Logger собирает slog по LogLevel/LogFormat.
func (c Config) Logger() *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
