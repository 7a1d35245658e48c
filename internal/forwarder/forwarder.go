package forwarder

import (
	"log/slog"

	"github.com/tracyhatemice/inboxwatch/internal/receiver"
	"github.com/tracyhatemice/inboxwatch/internal/watcher"
)

// Mailer delivers a mail to an address. *sender.Sender implements it.
type Mailer interface {
	Forward(m receiver.Mail, to, inbox string) error
}

// Forwarder relays every mail a watcher receives to one address.
type Forwarder struct {
	name   string
	to     string
	mailer Mailer
	logger *slog.Logger
}

// New creates a Forwarder for the watcher configured under name. With an
// empty to or a nil mailer, mails are only logged.
func New(name, to string, mailer Mailer, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		name:   name,
		to:     to,
		mailer: mailer,
		logger: logger,
	}
}

// Handle is a watcher.MailFunc.
func (f *Forwarder) Handle(w *watcher.Watcher, m receiver.Mail) {
	f.logger.Info("new mail",
		"watcher", f.name,
		"msg_id", m.ID,
		"from", m.From,
		"subject", m.Subject,
	)

	if f.to == "" || f.mailer == nil {
		return
	}

	if err := f.mailer.Forward(m, f.to, w.URI()); err != nil {
		f.logger.Error("forward failed",
			"watcher", f.name,
			"msg_id", m.ID,
			"error", err,
		)
		return
	}

	f.logger.Info("forwarded",
		"watcher", f.name,
		"msg_id", m.ID,
		"to", f.to,
	)
}

// HandleError is a watcher.ErrorFunc.
func (f *Forwarder) HandleError(w *watcher.Watcher, err error) {
	f.logger.Warn("poll failed", "watcher", f.name, "inbox", w.URI(), "error", err)
}
