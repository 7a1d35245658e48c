package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/emersion/go-message/mail"
	pop3client "github.com/knadh/go-pop3"
)

// POP3Receiver lists and fetches messages over POP3/POP3S. Entries are
// keyed by UIDL and listed newest first.
type POP3Receiver struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger
}

// NewPOP3 creates a new POP3 receiver.
func NewPOP3(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *POP3Receiver {
	return &POP3Receiver{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

func (r *POP3Receiver) Location() string {
	return fmt.Sprintf("pop3://%s@%s", r.username, net.JoinHostPort(r.host, strconv.Itoa(r.port)))
}

func (r *POP3Receiver) session(ctx context.Context) (*pop3client.Conn, func(), error) {
	addr := net.JoinHostPort(r.host, strconv.Itoa(r.port))

	client := pop3client.New(pop3client.Opt{
		Host:       r.host,
		Port:       r.port,
		TLSEnabled: r.useTLS,
	})
	conn, err := client.NewConn()
	if err != nil {
		return nil, nil, fmt.Errorf("pop3 connect %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Quit() })
	closer := func() {
		if stop() {
			conn.Quit()
		}
	}

	if err := conn.Auth(r.username, r.password); err != nil {
		closer()
		return nil, nil, fmt.Errorf("pop3 auth %s: %w", r.username, err)
	}
	return conn, closer, nil
}

func (r *POP3Receiver) List(ctx context.Context) ([]Entry, error) {
	conn, closer, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	msgs, err := conn.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("pop3 uidl: %w", err)
	}

	entries := make([]Entry, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		id := msg.UID
		if id == "" {
			id = strconv.Itoa(msg.ID)
		}

		top, err := conn.Top(msg.ID, 0)
		if err != nil {
			return entries, fmt.Errorf("pop3 top %d: %w", msg.ID, err)
		}
		entries = append(entries, headerEntry(id, mail.Header{Header: top.Header}))
	}

	r.logger.Debug("listed messages", "count", len(entries))
	return entries, nil
}

func (r *POP3Receiver) Body(ctx context.Context, id string) (string, error) {
	conn, closer, err := r.session(ctx)
	if err != nil {
		return "", err
	}
	defer closer()

	msgs, err := conn.Uidl(0)
	if err != nil {
		return "", fmt.Errorf("pop3 uidl: %w", err)
	}

	for _, msg := range msgs {
		if msg.UID != id && strconv.Itoa(msg.ID) != id {
			continue
		}
		raw, err := conn.RetrRaw(msg.ID)
		if err != nil {
			return "", fmt.Errorf("pop3 retrieve %d: %w", msg.ID, err)
		}
		return textBody(raw.Bytes()), nil
	}
	return "", fmt.Errorf("pop3 message %q not found", id)
}

func (r *POP3Receiver) Close() error {
	return nil
}
