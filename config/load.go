package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

// Load reads optional .env files into the process environment and binds it into a
// Config. Variables already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}
	cfg.AllowOrigins = trimList(cfg.AllowOrigins)
	cfg.AllowMethods = trimList(cfg.AllowMethods)
	cfg.KafkaBrokers = trimList(cfg.KafkaBrokers)
	return cfg, nil
}

// trimList drops blanks around comma separated entries: "a:9092, b:9092".
func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
