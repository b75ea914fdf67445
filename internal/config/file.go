package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/theakshaypant/calmirror/internal/account"
)

// DefaultPath returns $HOME/.config/calmirror/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "calmirror", "config.yaml")
}

// File edits the YAML config file in place, keeping keys it does not know.
type File struct {
	Path string
}

func (f File) read() (map[string]interface{}, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]interface{}), nil
		}
		return nil, err
	}

	var config map[string]interface{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if config == nil {
		config = make(map[string]interface{})
	}
	return config, nil
}

func (f File) write(config map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}

// SaveAccount adds or replaces an account entry.
func (f File) SaveAccount(a account.Config) error {
	config, err := f.read()
	if err != nil {
		return err
	}

	accounts, ok := config["accounts"].(map[string]interface{})
	if !ok {
		accounts = make(map[string]interface{})
	}

	entry := map[string]interface{}{
		"provider":   a.Provider,
		"token_file": a.TokenFile,
	}
	if a.CredentialsFile != "" {
		entry["credentials_file"] = a.CredentialsFile
	}
	if a.ClientID != "" {
		entry["client_id"] = a.ClientID
	}
	if a.TenantID != "" {
		entry["tenant_id"] = a.TenantID
	}
	accounts[a.ID] = entry
	config["accounts"] = accounts

	return f.write(config)
}

// SetDefaultAccount records the account used without --account.
func (f File) SetDefaultAccount(id string) error {
	config, err := f.read()
	if err != nil {
		return err
	}
	config["default_account"] = id
	return f.write(config)
}
