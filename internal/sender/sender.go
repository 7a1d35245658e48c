package sender

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tracyhatemice/inboxwatch/internal/receiver"
)

// Sender forwards received mails over SMTP.
type Sender struct {
	host     string
	port     int
	username string
	password string
	from     string
	useTLS   bool
	logger   *slog.Logger
}

// New creates a new SMTP sender. from is the envelope and header sender
// of forwarded mails; it defaults to username.
func New(host string, port int, username, password, from string, useTLS bool, logger *slog.Logger) *Sender {
	if from == "" {
		from = username
	}
	return &Sender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		useTLS:   useTLS,
		logger:   logger,
	}
}

// Forward sends m to the target address, noting the inbox it came from.
func (s *Sender) Forward(m receiver.Mail, to, inbox string) error {
	message, err := Compose(m, s.from, to, inbox, time.Now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	var client *smtp.Client

	if s.useTLS {
		tlsConfig := &tls.Config{ServerName: s.host}
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("smtp tls dial %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("smtp new client: %w", err)
		}
	} else {
		client, err = smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("smtp dial %s: %w", addr, err)
		}
		// Try STARTTLS if available.
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: s.host}
			if err := client.StartTLS(tlsConfig); err != nil {
				s.logger.Warn("STARTTLS failed, continuing without TLS", "error", err)
			}
		}
	}
	defer client.Close()

	// Authenticate if credentials are provided.
	if s.username != "" && s.password != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}

	return client.Quit()
}

// Compose renders m as a new RFC 5322 message from -> to. The original
// sender becomes Reply-To and the inbox is recorded in X-Forwarded-From.
func Compose(m receiver.Mail, from, to, inbox string, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	if m.From != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: m.From}})
	}
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	h.Set("X-Forwarded-By", "inboxwatch")
	h.Set("X-Forwarded-From", inbox)
	h.Set("X-Original-Message-ID", m.ID)
	h.SetContentType(contentType(m.Body), map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func contentType(body string) string {
	if looksLikeHTML(body) {
		return "text/html"
	}
	return "text/plain"
}

// looksLikeHTML reports whether body contains a known HTML tag. Addresses
// such as <a@b> tokenize as tags too, so unknown tag names don't count.
func looksLikeHTML(body string) bool {
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.DoctypeToken:
			return true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != 0 {
				return true
			}
		}
	}
}
