// Package config loads the JSON configuration file the external
// launcher points the server at. Parsing flags, environment variables,
// or a daemonizing supervisor is out of scope for the core; this
// package only turns a config file path into a plain struct.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the launcher-supplied settings. Every field is optional;
// Defaults supplies IP, Port, DataPath and UserPath, and an empty LogPath
// or WorkingDirectory leaves that setting unused.
type Config struct {
	IP               string `json:"ip"`
	Port             int    `json:"port"`
	DataPath         string `json:"data_path"`
	UserPath         string `json:"user_path"`
	LogPath          string `json:"log_path"`
	WorkingDirectory string `json:"working_directory"`
}

// Defaults returns the configuration used when no file is supplied.
func Defaults() Config {
	return Config{
		IP:       "0.0.0.0",
		Port:     8080,
		DataPath: "muonbase.db",
		UserPath: "users.json",
	}
}

// Load reads and parses the JSON config file at path on top of Defaults:
// a field absent from the file keeps its default, while a field present
// in the file replaces it, even with a zero value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
