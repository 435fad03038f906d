package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all quill configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	APIBase    string `json:"api_base"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	CredFile   string `json:"cred_file"`
	PolicyFile string `json:"policy_file"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     filepath.Join(quillDir(), "quill.db"),
		LogLevel:   "info",
		PolicyFile: filepath.Join(quillDir(), "policy.json"),
	}
}

func quillDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quill"
	}
	return filepath.Join(home, ".quill")
}

func settingsPath() string {
	return filepath.Join(quillDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("QUILL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("QUILL_API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv("QUILL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("QUILL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("QUILL_CRED_FILE"); v != "" {
		cfg.CredFile = v
	}
	if v := os.Getenv("QUILL_POLICY_FILE"); v != "" {
		cfg.PolicyFile = v
	}

	// Derive api_base from listen_addr if empty.
	if cfg.APIBase == "" {
		cfg.APIBase = "http://localhost" + cfg.ListenAddr
	}

	return cfg
}
