package forwarder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracyhatemice/inboxwatch/internal/logging"
	"github.com/tracyhatemice/inboxwatch/internal/receiver"
	"github.com/tracyhatemice/inboxwatch/internal/watcher"
)

type forwarded struct {
	mail  receiver.Mail
	to    string
	inbox string
}

type mockMailer struct {
	sent []forwarded
	err  error
}

func (m *mockMailer) Forward(mail receiver.Mail, to, inbox string) error {
	m.sent = append(m.sent, forwarded{mail, to, inbox})
	return m.err
}

type staticReceiver struct {
	entries []receiver.Entry
}

func (r *staticReceiver) List(context.Context) ([]receiver.Entry, error) { return r.entries, nil }
func (r *staticReceiver) Body(_ context.Context, id string) (string, error) {
	return "body " + id, nil
}
func (r *staticReceiver) Location() string { return "static://inbox" }
func (r *staticReceiver) Close() error     { return nil }

func TestForwarderRelaysNewMail(t *testing.T) {
	mailer := &mockMailer{}
	fwd := New("test", "me@example.net", mailer, logging.Discard())
	w := watcher.NewFromReceiver(&staticReceiver{entries: []receiver.Entry{
		{ID: "1", From: "a@example.com", Subject: "s1"},
		{ID: "2", From: "b@example.com", Subject: "s2"},
	}}).OnMailReceived(fwd.Handle)

	if !assert.NoError(t, w.Poll(context.Background())) {
		t.FailNow()
	}
	if assert.Len(t, mailer.sent, 2) {
		assert.Equal(t, forwarded{
			mail:  receiver.Mail{ID: "1", From: "a@example.com", Subject: "s1", Body: "body 1"},
			to:    "me@example.net",
			inbox: "static://inbox",
		}, mailer.sent[0])
		assert.Equal(t, "2", mailer.sent[1].mail.ID)
	}
}

func TestForwarderKeepsGoingOnSendFailure(t *testing.T) {
	mailer := &mockMailer{err: errors.New("relay refused")}
	fwd := New("test", "me@example.net", mailer, logging.Discard())
	w := watcher.NewFromReceiver(&staticReceiver{entries: []receiver.Entry{{ID: "1"}, {ID: "2"}}}).
		OnMailReceived(fwd.Handle)

	assert.NoError(t, w.Poll(context.Background()))
	assert.Len(t, mailer.sent, 2)
	assert.Len(t, w.Received(), 2)
}

func TestForwarderWithoutTargetOnlyLogs(t *testing.T) {
	mailer := &mockMailer{}
	fwd := New("test", "", mailer, logging.Discard())
	w := watcher.NewFromReceiver(&staticReceiver{entries: []receiver.Entry{{ID: "1"}}}).
		OnMailReceived(fwd.Handle)

	assert.NoError(t, w.Poll(context.Background()))
	assert.Empty(t, mailer.sent)
}
