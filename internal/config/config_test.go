package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const sample = `
log_level: debug
sender:
  host: smtp.example.org
  port: 587
  username: relay@example.org
  password: secret
watchers:
  - name: signup
    domain: teleworm.us
    inbox: jdoe
    from_filter: noreply@service.example
    interval_seconds: 10
    forward_to: me@example.net
  - name: work
    source: imap
    host: imap.example.org
    port: 993
    use_tls: true
    username: me
    password: pw
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if !assert.NoError(t, os.WriteFile(path, []byte(sample), 0o600)) {
		t.FailNow()
	}

	cfg, err := Load(path)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "smtp.example.org", cfg.Sender.Host)
	if assert.Len(t, cfg.Watchers, 2) {
		web := cfg.Watchers[0]
		assert.Equal(t, "web", web.GetSource())
		assert.Equal(t, 10*time.Second, web.Interval())
		assert.Equal(t, "noreply@service.example", web.FromFilter)

		imap := cfg.Watchers[1]
		assert.Equal(t, "imap", imap.GetSource())
		assert.Equal(t, 5*time.Second, imap.Interval())
		assert.Equal(t, 7, imap.GetProcessDays())
		assert.True(t, imap.UseTLS)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("watchers: [{domain: d, inbox: n}]"))
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Sender)
	assert.Equal(t, "#0", cfg.Watchers[0].Label(0))
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no watchers", "log_level: info", "at least one watcher"},
		{"web without domain", "watchers: [{inbox: n}]", "domain is required"},
		{"web without inbox", "watchers: [{domain: d}]", "inbox is required"},
		{"imap without host", "watchers: [{source: imap, port: 1}]", "host is required"},
		{"pop3 without port", "watchers: [{source: pop3, host: h}]", "port is required"},
		{"unknown source", "watchers: [{name: x, source: smtp}]", "watcher x: source must be"},
		{"forward without sender", "watchers: [{domain: d, inbox: n, forward_to: a@b}]", "requires a sender"},
		{"sender without port", "sender: {host: h}\nwatchers: [{domain: d, inbox: n}]", "sender.port is required"},
		{"bad yaml", "watchers: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
