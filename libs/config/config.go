package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	mu sync.RWMutex
	v  = newViper()
)

func newViper() *viper.Viper {
	vp := viper.New()
	vp.AutomaticEnv()
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return vp
}

// Load reads optional dotenv files into the process environment and, when
// file is non-empty, merges a config file (yaml, json, toml or env) on top
// of the defaults. Environment variables always win over file values.
func Load(file string, dotenv ...string) error {
	if len(dotenv) > 0 {
		if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load dotenv: %w", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	vp := newViper()
	if file != "" {
		vp.SetConfigFile(file)
		if err := vp.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}
	v = vp
	return nil
}

func lookup(key string) string {
	mu.RLock()
	defer mu.RUnlock()
	return strings.TrimSpace(v.GetString(key))
}

func String(key, fallback string) string {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	return val
}

func RequiredString(key string) (string, error) {
	val := lookup(key)
	if val == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return val, nil
}

func Port(key, fallback string) (string, error) {
	val := String(key, fallback)
	p, err := strconv.Atoi(val)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, val)
	}
	return val, nil
}

func Int(key string, fallback int) (int, error) {
	val := lookup(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, val)
	}
	return n, nil
}

func Bool(key string, fallback bool) bool {
	val := lookup(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func Duration(key string, fallback time.Duration) (time.Duration, error) {
	val := lookup(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 5m (got %q)", key, val)
	}
	return d, nil
}
