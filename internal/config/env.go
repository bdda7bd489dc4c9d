package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// LoadEnv reads a .env file and returns a map of key-value pairs.
// It ignores comments (starting with #) and empty lines.
func LoadEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove inline comments
		if idx := strings.Index(value, " #"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		env[key] = value
	}

	return env, scanner.Err()
}

// ApplyEnvOverrides updates the configuration based on environment variables.
func ApplyEnvOverrides(cfg *Config, env map[string]string) {
	if val, ok := env["SERVER_PORT"]; ok {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	if val, ok := env["DUET_DB"]; ok && val != "" {
		cfg.Storage.Path = val
	}

	if val, ok := env["DUET_KIND"]; ok {
		cfg.Recording.PreferredKind = val
	}
	if val, ok := env["DUET_COUNTDOWN"]; ok {
		if seconds, err := strconv.Atoi(val); err == nil {
			cfg.Recording.CountdownSeconds = seconds
		}
	}

	if val, ok := env["DUET_STAR_SCALE"]; ok {
		if scale, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Scoring.StarScale = scale
		}
	}
}
