package receiver

import (
	"context"
	"errors"
	"fmt"
)

// Entry is one message as it appears in an inbox listing.
type Entry struct {
	ID      string // dedup key, unique within one inbox
	From    string // bare sender address
	Subject string
}

// Mail is a received message. It is never modified after creation.
type Mail struct {
	ID      string
	From    string
	Subject string
	Body    string
}

// NewMail builds a Mail from a listing entry and its fetched body.
func NewMail(e Entry, body string) Mail {
	return Mail{
		ID:      e.ID,
		From:    e.From,
		Subject: e.Subject,
		Body:    body,
	}
}

// Receiver lists and fetches messages from one inbox.
type Receiver interface {
	// List returns the entries currently visible in the inbox, in listing
	// order. When an entry cannot be parsed, List returns the entries that
	// precede it together with a non-nil error.
	List(ctx context.Context) ([]Entry, error)

	// Body fetches the content of the message with the given ID.
	Body(ctx context.Context, id string) (string, error)

	// Location identifies the inbox, e.g. the listing URL.
	Location() string

	// Close releases any resources held by the receiver.
	Close() error
}

// ErrNoListing is returned when a listing page has no message container.
var ErrNoListing = errors.New("message list not found")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// EntryError reports a listing entry that does not have the expected shape.
type EntryError struct {
	Index int    // zero-based position in the listing
	Field string // "link", "from", "subject" or "id"
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
