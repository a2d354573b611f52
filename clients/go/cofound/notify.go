package cofound

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"
)

// Alert is one user-visible notification.
type Alert struct {
	ID        string
	PartnerID string
	Preview   string
	At        time.Time
}

// Sink renders alerts. Implementations are UI-specific; the dispatcher
// only decides when to call them.
type Sink interface {
	PlayCue()
	Show(alert Alert)
	Dismiss(alertID string)
}

// SnoozeStore persists the snooze expiry across restarts.
type SnoozeStore interface {
	Load() (time.Time, error)
	Save(until time.Time) error
}

const defaultDismissAfter = 6 * time.Second

// Notifier turns new-message signals into alerts, suppressing the ones
// the user should not see: messages they authored themselves, messages
// in the conversation currently open on screen, and anything inside a
// snooze window. Suppression never blocks the underlying cache updates;
// it only silences the cue.
type Notifier struct {
	mu           sync.Mutex
	localUserID  string
	sink         Sink
	store        SnoozeStore
	openPartner  string
	snoozedUntil time.Time
	dismissAfter time.Duration
	seq          int

	now func() time.Time
}

func NewNotifier(localUserID string, sink Sink, store SnoozeStore) *Notifier {
	n := &Notifier{
		localUserID:  localUserID,
		sink:         sink,
		store:        store,
		dismissAfter: defaultDismissAfter,
		now:          time.Now,
	}
	if store != nil {
		if until, err := store.Load(); err == nil {
			n.snoozedUntil = until
		}
	}
	return n
}

// OpenConversation marks a partner's thread as on-screen; its messages
// stop producing alerts until ClosedConversation.
func (n *Notifier) OpenConversation(partnerID string) {
	n.mu.Lock()
	n.openPartner = partnerID
	n.mu.Unlock()
}

func (n *Notifier) CloseConversation() {
	n.mu.Lock()
	n.openPartner = ""
	n.mu.Unlock()
}

// Snooze suppresses alerts for the given duration and persists the
// expiry so a restart does not cancel it.
func (n *Notifier) Snooze(d time.Duration) error {
	n.mu.Lock()
	n.snoozedUntil = n.now().Add(d)
	until := n.snoozedUntil
	store := n.store
	n.mu.Unlock()

	if store != nil {
		return store.Save(until)
	}
	return nil
}

// Snoozed reports whether a snooze window is currently active.
func (n *Notifier) Snoozed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.now().Before(n.snoozedUntil)
}

// HandleMessage decides whether msg deserves an alert and, when it
// does, plays the cue and shows a transient alert that dismisses itself.
// Returns whether an alert was surfaced.
func (n *Notifier) HandleMessage(msg model.Message) bool {
	n.mu.Lock()

	if msg.SenderID == n.localUserID {
		n.mu.Unlock()
		return false
	}
	if n.openPartner != "" && msg.SenderID == n.openPartner {
		n.mu.Unlock()
		return false
	}
	if n.now().Before(n.snoozedUntil) {
		n.mu.Unlock()
		return false
	}

	n.seq++
	alert := Alert{
		ID:        fmt.Sprintf("alert-%d-%d", msg.ID, n.seq),
		PartnerID: msg.SenderID,
		Preview:   preview(msg.Body),
		At:        msg.CreatedAt,
	}
	sink := n.sink
	dismissAfter := n.dismissAfter
	n.mu.Unlock()

	if sink == nil {
		return false
	}

	sink.PlayCue()
	sink.Show(alert)
	time.AfterFunc(dismissAfter, func() {
		sink.Dismiss(alert.ID)
	})
	return true
}

func preview(body string) string {
	const max = 80
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "…"
}

// FileSnoozeStore keeps the snooze expiry in a small JSON file under the
// user's config dir.
type FileSnoozeStore struct {
	Path string
}

func NewFileSnoozeStore() *FileSnoozeStore {
	dir := os.Getenv("COFOUND_CONFIG")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".cofound")
	}
	return &FileSnoozeStore{Path: filepath.Join(dir, "snooze.json")}
}

type snoozeFile struct {
	Until time.Time `json:"until"`
}

func (s *FileSnoozeStore) Load() (time.Time, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return time.Time{}, err
	}
	var f snoozeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return time.Time{}, err
	}
	return f.Until, nil
}

func (s *FileSnoozeStore) Save(until time.Time) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return err
	}
	data, _ := json.Marshal(snoozeFile{Until: until})
	return os.WriteFile(s.Path, data, 0600)
}
