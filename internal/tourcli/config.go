// config.go holds .tourdesk config types and resolution (load, save, settings merge).
package tourcli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// localConfig holds optional values from .tourdesk/config.yaml (flags override).
type localConfig struct {
	Server         string `yaml:"server"`
	NATSURL        string `yaml:"nats_url"`
	NATSUser       string `yaml:"nats_user"`
	NATSPassword   string `yaml:"nats_password"`
	Identity       string `yaml:"identity"`
	Token          string `yaml:"token"`
	JWTSecret      string `yaml:"jwt_secret"`
	PendingTimeout string `yaml:"pending_timeout"`
	Tracing        *bool  `yaml:"tracing"`
}

// settings are the merged effective values a command runs with.
type settings struct {
	Server         string
	NATSURL        string
	NATSUser       string
	NATSPassword   string
	Identity       string
	Token          string
	JWTSecret      string
	PendingTimeout time.Duration
	Tracing        bool
	ConfigPath     string
	TourdeskDir    string
}

// loadLocalConfig tries ./.tourdesk/config.yaml then ~/.tourdesk/config.yaml.
// Returns (config, pathToConfigFile, nil). If neither file exists, returns (empty, "", nil).
func loadLocalConfig() (localConfig, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return localConfig{}, "", err
	}
	try := []string{
		filepath.Join(cwd, ".tourdesk", "config.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		try = append(try, filepath.Join(home, ".tourdesk", "config.yaml"))
	}
	for _, p := range try {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return localConfig{}, "", err
		}
		var cfg localConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return localConfig{}, "", fmt.Errorf("%s: %w", p, err)
		}
		return cfg, p, nil
	}
	return localConfig{}, "", nil
}

// saveLocalConfig writes cfg back to path, creating the directory if needed.
func saveLocalConfig(path string, cfg localConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// mergeSettings combines config file values with flags; flags win when
// explicitly set, environment variables fill remaining gaps.
func mergeSettings(cfg localConfig, configPath string, flagServer, flagNATS, flagToken string, flagTrace bool, changed func(string) bool) (settings, error) {
	var tourdeskDir string
	if configPath != "" {
		tourdeskDir = filepath.Dir(configPath)
	} else {
		cwd, _ := os.Getwd()
		tourdeskDir = filepath.Join(cwd, ".tourdesk")
	}

	s := settings{
		Server:       cfg.Server,
		NATSURL:      cfg.NATSURL,
		NATSUser:     cfg.NATSUser,
		NATSPassword: cfg.NATSPassword,
		Identity:     cfg.Identity,
		Token:        cfg.Token,
		JWTSecret:    cfg.JWTSecret,
		ConfigPath:   configPath,
		TourdeskDir:  tourdeskDir,
	}
	if changed("server") || s.Server == "" {
		s.Server = flagServer
	}
	if changed("nats") || s.NATSURL == "" {
		s.NATSURL = flagNATS
	}
	if changed("token") && flagToken != "" {
		s.Token = flagToken
	}
	if s.JWTSecret == "" {
		s.JWTSecret = os.Getenv("TOURDESK_JWT_SECRET")
	}
	if s.Token == "" {
		s.Token = os.Getenv("TOURDESK_TOKEN")
	}

	s.Tracing = flagTrace
	if !flagTrace && !changed("trace") && cfg.Tracing != nil {
		s.Tracing = *cfg.Tracing
	}

	s.PendingTimeout = 0
	if cfg.PendingTimeout != "" {
		d, err := time.ParseDuration(strings.TrimSpace(cfg.PendingTimeout))
		if err != nil {
			return settings{}, fmt.Errorf("invalid pending_timeout %q: %w", cfg.PendingTimeout, err)
		}
		s.PendingTimeout = d
	}
	return s, nil
}
