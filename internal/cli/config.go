package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/apexfest/checkin/internal/intake"
)

// Config holds CLI configuration
type Config struct {
	ServerURL string
	Token     string
	TokenFile string
	StateDir  string
	Output    string
	Verbose   bool
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	stateDir := getEnvOrDefault("CHECKIN_STATE_DIR", defaultStateDir())
	return &Config{
		ServerURL: getEnvOrDefault("CHECKIN_SERVER", "http://localhost:8080"),
		Token:     os.Getenv("CHECKIN_TOKEN"),
		TokenFile: getEnvOrDefault("CHECKIN_TOKEN_FILE", filepath.Join(stateDir, "token")),
		StateDir:  stateDir,
		Output:    "text",
		Verbose:   false,
	}
}

// LoadToken loads the token from file if not already set
func (c *Config) LoadToken() error {
	if c.Token != "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // No token file is fine
		}
		return err
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

// SaveToken saves the token to the token file
func (c *Config) SaveToken(token string) error {
	c.Token = token

	dir := filepath.Dir(c.TokenFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	return os.WriteFile(c.TokenFile, []byte(token), 0600)
}

// ClearToken forgets the saved token
func (c *Config) ClearToken() error {
	c.Token = ""
	if err := os.Remove(c.TokenFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func defaultStateDir() string {
	dir, err := intake.DefaultDir()
	if err != nil {
		return ".checkin"
	}
	return dir
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
