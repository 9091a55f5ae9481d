// Package session persists the CLI's login between invocations.
//
// The store is the one piece of application context every client-side
// component shares: the client reads the token from it and clears it when the
// registry answers 401, and the workspace reads the account to decide whether
// saving or forking applies.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketSessions = "sessions"
	keyCurrent     = "current"
)

// ErrNoSession is returned by Load when nobody is logged in.
var ErrNoSession = errors.New("session: not logged in")

// Session is what a successful login leaves behind.
type Session struct {
	Token     string    `json:"token"`
	AccountID string    `json:"account_id"`
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a bbolt file holding at most one session.
type Store struct {
	db *bbolt.DB

	mu     sync.Mutex
	cached *Session
}

// Open opens or creates the store at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("session: creating directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: opening %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSessions))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the current session or ErrNoSession.
func (s *Store) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		cp := *s.cached
		return &cp, nil
	}

	var sess *Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketSessions)).Get([]byte(keyCurrent))
		if v == nil {
			return nil
		}
		var loaded Session
		if err := json.Unmarshal(v, &loaded); err != nil {
			return err
		}
		sess = &loaded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: loading: %w", err)
	}
	if sess == nil || sess.Token == "" {
		return nil, ErrNoSession
	}
	s.cached = sess
	cp := *sess
	return &cp, nil
}

// Token returns the bearer token, or "" when logged out.
func (s *Store) Token() string {
	sess, err := s.Load()
	if err != nil {
		return ""
	}
	return sess.Token
}

// Save replaces the current session.
func (s *Store) Save(sess *Session) error {
	if sess == nil || sess.Token == "" {
		return errors.New("session: refusing to save a session without a token")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encoding: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(keyCurrent), data)
	}); err != nil {
		return fmt.Errorf("session: saving: %w", err)
	}
	cp := *sess
	s.cached = &cp
	return nil
}

// Clear logs out. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Delete([]byte(keyCurrent))
	}); err != nil {
		return fmt.Errorf("session: clearing: %w", err)
	}
	return nil
}
