package receiver

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPReceiver lists and fetches messages over IMAP/IMAPS. Entries are
// keyed by UID and listed newest first, like a web inbox.
type IMAPReceiver struct {
	host        string
	port        int
	username    string
	password    string
	useTLS      bool
	folder      string
	processDays int
	logger      *slog.Logger
}

// NewIMAP creates a new IMAP receiver.
func NewIMAP(host string, port int, username, password string, useTLS bool, folder string, processDays int, logger *slog.Logger) *IMAPReceiver {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPReceiver{
		host:        host,
		port:        port,
		username:    username,
		password:    password,
		useTLS:      useTLS,
		folder:      folder,
		processDays: processDays,
		logger:      logger,
	}
}

func (r *IMAPReceiver) Location() string {
	return fmt.Sprintf("imap://%s@%s/%s", r.username, net.JoinHostPort(r.host, strconv.Itoa(r.port)), r.folder)
}

// session dials, logs in and selects the folder. The returned func logs
// out and closes the connection.
func (r *IMAPReceiver) session(ctx context.Context) (*imapclient.Client, func(), error) {
	addr := net.JoinHostPort(r.host, strconv.Itoa(r.port))

	var client *imapclient.Client
	var err error

	if r.useTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: r.host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}

	// imapclient commands don't take a context; closing the connection
	// unblocks any pending Wait.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	closer := func() {
		stop()
		_ = client.Logout().Wait()
		client.Close()
	}

	if err := client.Login(r.username, r.password).Wait(); err != nil {
		closer()
		return nil, nil, fmt.Errorf("imap login %s: %w", r.username, err)
	}
	if _, err := client.Select(r.folder, nil).Wait(); err != nil {
		closer()
		return nil, nil, fmt.Errorf("imap select %s: %w", r.folder, err)
	}
	return client, closer, nil
}

func (r *IMAPReceiver) List(ctx context.Context) ([]Entry, error) {
	client, closer, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	defer closer()

	criteria := &imap.SearchCriteria{}
	if r.processDays > 0 {
		criteria.Since = time.Now().AddDate(0, 0, -r.processDays)
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		r.logger.Debug("no messages found", "folder", r.folder)
		return nil, nil
	}

	buffers, err := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	slices.SortFunc(buffers, func(a, b *imapclient.FetchMessageBuffer) int {
		return int(b.UID) - int(a.UID)
	})

	entries := make([]Entry, 0, len(buffers))
	for _, buf := range buffers {
		entry := Entry{ID: strconv.FormatUint(uint64(buf.UID), 10)}
		if buf.Envelope != nil {
			entry.Subject = buf.Envelope.Subject
			if len(buf.Envelope.From) > 0 {
				entry.From = buf.Envelope.From[0].Addr()
			}
		}
		entries = append(entries, entry)
	}

	r.logger.Debug("listed messages", "folder", r.folder, "count", len(entries))
	return entries, nil
}

func (r *IMAPReceiver) Body(ctx context.Context, id string) (string, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return "", fmt.Errorf("imap uid %q: %w", id, err)
	}

	client, closer, err := r.session(ctx)
	if err != nil {
		return "", err
	}
	defer closer()

	bodySection := &imap.FetchItemBodySection{Peek: true}
	buffers, err := client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return "", fmt.Errorf("imap fetch: %w", err)
	}
	if len(buffers) == 0 {
		return "", fmt.Errorf("imap uid %d not found", uid)
	}

	content := buffers[0].FindBodySection(bodySection)
	if len(content) == 0 {
		return "", fmt.Errorf("imap uid %d: empty body", uid)
	}
	return textBody(content), nil
}

func (r *IMAPReceiver) Close() error {
	return nil
}
