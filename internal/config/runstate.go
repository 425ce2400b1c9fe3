package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

// LastFetchKey is the dotenv key holding the last successful run time.
const LastFetchKey = "LAST_FETCH_TIME"

// ReadLastRun returns the recorded last run time. A missing file or key yields the zero time.
func ReadLastRun(path string) (time.Time, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read run state: %w", err)
	}
	raw, ok := env[LastFetchKey]
	if !ok || raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", LastFetchKey, err)
	}
	return ts.UTC(), nil
}

// WriteLastRun records ts in the dotenv file, keeping any other keys.
func WriteLastRun(path string, ts time.Time) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read run state: %w", err)
		}
		env = map[string]string{}
	}
	env[LastFetchKey] = ts.UTC().Format(time.RFC3339)
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	return nil
}
