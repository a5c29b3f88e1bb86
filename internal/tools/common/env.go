package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile applies KEY=VALUE pairs from path to the process environment.
// A missing file is not an error and variables that are already set win.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	values, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	for k, v := range values {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}
