package receiver

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// headerEntry builds an Entry from the From and Subject headers of h.
func headerEntry(id string, h mail.Header) Entry {
	e := Entry{ID: id}
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		e.From = addrs[0].Address
	}
	if subject, err := h.Subject(); err == nil {
		e.Subject = subject
	} else {
		e.Subject = h.Get("Subject")
	}
	return e
}

// textBody returns the first inline text part of a raw RFC 5322 message,
// preferring text/plain. Messages that cannot be decoded are returned as-is.
func textBody(raw []byte) string {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return string(raw)
	}
	defer r.Close()

	var html string
	for {
		p, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return string(raw)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		b, err := io.ReadAll(p.Body)
		if err != nil {
			return string(raw)
		}
		switch {
		case ct == "" || ct == "text/plain":
			return string(b)
		case strings.HasPrefix(ct, "text/html") && html == "":
			html = string(b)
		}
	}
	if html != "" {
		return html
	}
	return string(raw)
}
