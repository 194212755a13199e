package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie names the cookie carrying the flash session id
const SessionCookie = "task_session"

const (
	flashTaskName    = "task_name"
	flashErrorReason = "task_error_reason"
)

// flashTTL bounds how long a flash value nobody reads is kept
const flashTTL = 30 * time.Minute

type flashSession struct {
	values  map[string]string
	touched time.Time
}

// FlashStore keeps per-session values between a request and the page it
// redirects to
type FlashStore struct {
	mu   sync.Mutex
	data map[string]*flashSession
	ttl  time.Duration
	now  func() time.Time
}

// NewFlashStore creates an empty FlashStore
func NewFlashStore() *FlashStore {
	return &FlashStore{data: make(map[string]*flashSession), ttl: flashTTL, now: time.Now}
}

// Session returns the session id of the request, issuing a new one in a
// cookie if the request has none
func (f *FlashStore) Session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Set stores a value for the session. Sessions untouched for longer than
// the flash lifetime are dropped.
func (f *FlashStore) Set(session, key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	for id, sess := range f.data {
		if now.Sub(sess.touched) > f.ttl {
			delete(f.data, id)
		}
	}
	sess := f.data[session]
	if sess == nil {
		sess = &flashSession{values: make(map[string]string)}
		f.data[session] = sess
	}
	sess.values[key] = value
	sess.touched = now
}

func (f *FlashStore) lookup(session string) *flashSession {
	sess := f.data[session]
	if sess == nil {
		return nil
	}
	if f.now().Sub(sess.touched) > f.ttl {
		delete(f.data, session)
		return nil
	}
	return sess
}

// Get returns a value without removing it
func (f *FlashStore) Get(session, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := f.lookup(session)
	if sess == nil {
		return "", false
	}
	v, ok := sess.values[key]
	return v, ok
}

// Take returns a value and removes it
func (f *FlashStore) Take(session, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := f.lookup(session)
	if sess == nil {
		return "", false
	}
	v, ok := sess.values[key]
	if ok {
		delete(sess.values, key)
		if len(sess.values) == 0 {
			delete(f.data, session)
		}
	}
	return v, ok
}

// Len returns the number of sessions holding values
func (f *FlashStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}
