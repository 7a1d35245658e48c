package dedup

import "github.com/tracyhatemice/inboxwatch/internal/receiver"

// Tracker keeps the mails a watcher has received, in detection order.
// State is in-memory only. Tracker is not safe for concurrent use; the
// owning watcher guards it with its own lock.
type Tracker struct {
	mails []receiver.Mail
	ids   map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ids: make(map[string]struct{}),
	}
}

// Seen reports whether a mail with id has been recorded.
func (t *Tracker) Seen(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Add appends m unless its ID is already recorded. It reports whether m
// was added.
func (t *Tracker) Add(m receiver.Mail) bool {
	if _, exists := t.ids[m.ID]; exists {
		return false
	}
	t.ids[m.ID] = struct{}{}
	t.mails = append(t.mails, m)
	return true
}

// Mails returns a snapshot of the recorded mails.
func (t *Tracker) Mails() []receiver.Mail {
	cp := make([]receiver.Mail, len(t.mails))
	copy(cp, t.mails)
	return cp
}

// Reset forgets every recorded mail.
func (t *Tracker) Reset() {
	t.mails = nil
	t.ids = make(map[string]struct{})
}
