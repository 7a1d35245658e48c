package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel string    `yaml:"log_level"`
	Sender   *SMTP     `yaml:"sender"`
	Watchers []Watcher `yaml:"watchers"`
}

// SMTP holds the outgoing mail server used to forward received mail.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// Watcher describes one watched inbox.
type Watcher struct {
	Name            string `yaml:"name"`
	Source          string `yaml:"source"` // "web", "imap" or "pop3"
	FromFilter      string `yaml:"from_filter"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	ForwardTo       string `yaml:"forward_to"`

	// web
	BaseURL   string `yaml:"base_url"`
	Domain    string `yaml:"domain"`
	Inbox     string `yaml:"inbox"`
	UserAgent string `yaml:"user_agent"`

	// imap, pop3
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	UseTLS      bool   `yaml:"use_tls"`
	IMAPFolder  string `yaml:"imap_folder"`
	ProcessDays int    `yaml:"process_days"`
}

// Interval returns the poll interval as a time.Duration, defaulting to 5s.
func (w *Watcher) Interval() time.Duration {
	if w.IntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.IntervalSeconds) * time.Second
}

// GetSource returns the source kind, defaulting to "web".
func (w *Watcher) GetSource() string {
	if w.Source == "" {
		return "web"
	}
	return w.Source
}

// GetProcessDays returns the number of days to look back, defaulting to 7.
func (w *Watcher) GetProcessDays() int {
	if w.ProcessDays <= 0 {
		return 7
	}
	return w.ProcessDays
}

// Label names the watcher in logs and errors.
func (w *Watcher) Label(i int) string {
	if w.Name != "" {
		return w.Name
	}
	return fmt.Sprintf("#%d", i)
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Sender != nil {
		if c.Sender.Host == "" {
			return fmt.Errorf("sender.host is required")
		}
		if c.Sender.Port == 0 {
			return fmt.Errorf("sender.port is required")
		}
	}
	if len(c.Watchers) == 0 {
		return fmt.Errorf("at least one watcher is required")
	}
	for i, w := range c.Watchers {
		label := w.Label(i)
		switch w.GetSource() {
		case "web":
			if w.Domain == "" {
				return fmt.Errorf("watcher %s: domain is required", label)
			}
			if w.Inbox == "" {
				return fmt.Errorf("watcher %s: inbox is required", label)
			}
		case "imap", "pop3":
			if w.Host == "" {
				return fmt.Errorf("watcher %s: host is required", label)
			}
			if w.Port == 0 {
				return fmt.Errorf("watcher %s: port is required", label)
			}
		default:
			return fmt.Errorf("watcher %s: source must be web, imap or pop3", label)
		}
		if w.ForwardTo != "" && c.Sender == nil {
			return fmt.Errorf("watcher %s: forward_to requires a sender", label)
		}
	}
	return nil
}
