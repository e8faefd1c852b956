// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package session persists recommendation sessions in BadgerDB.
// Sessions are small JSON documents keyed by id with a TTL, so an
// abandoned session expires without any cleanup job.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/storybeats/storybeats/internal/recommend"
)

const sessionKeyPrefix = "session:"

// DefaultTTL is how long an idle session stays retrievable.
const DefaultTTL = 2 * time.Hour

// Store implements recommend.SessionStore on BadgerDB. Every mutation
// runs as one read-modify-write transaction, which serializes writers
// per key and keeps session updates atomic.
type Store struct {
	db  *badger.DB
	ttl time.Duration
	log zerolog.Logger
}

// Options configures a Store.
type Options struct {
	// Path is the on-disk database directory. Empty selects an
	// in-memory database, used in tests.
	Path string

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

// Open opens the database and returns a Store. Callers own the
// returned store and must Close it.
func Open(opts Options, log zerolog.Logger) (*Store, error) {
	var badgerOpts badger.Options
	if opts.Path == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "session_store").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create persists a new session with the store TTL.
func (s *Store) Create(_ context.Context, sess *recommend.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(sessionKeyPrefix+sess.ID), data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
}

// Get retrieves a session by id. Missing or expired sessions surface
// as recommend.ErrUnknownSession.
func (s *Store) Get(_ context.Context, id string) (*recommend.Session, error) {
	var sess recommend.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return recommend.ErrUnknownSession
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if err != nil {
		return nil, err
	}
	if sess.ExcludedIDs == nil {
		sess.ExcludedIDs = make(map[string]struct{})
	}
	return &sess, nil
}

// MarkServed records a served page atomically: the served tracks move
// to the front of the unserved region in page order, the cursor
// advances, and the excluded set grows. The TTL refreshes since the
// session is clearly still in use.
func (s *Store) MarkServed(_ context.Context, id string, servedIDs []string) error {
	return s.update(id, func(sess *recommend.Session) error {
		served := make(map[string]struct{}, len(servedIDs))
		for _, tid := range servedIDs {
			served[tid] = struct{}{}
			sess.ExcludedIDs[tid] = struct{}{}
		}

		reordered := sess.Pool[:sess.ServedCount:sess.ServedCount]
		for _, tid := range servedIDs {
			for i := sess.ServedCount; i < len(sess.Pool); i++ {
				if sess.Pool[i].TrackID == tid {
					reordered = append(reordered, sess.Pool[i])
					break
				}
			}
		}
		for i := sess.ServedCount; i < len(sess.Pool); i++ {
			if _, ok := served[sess.Pool[i].TrackID]; !ok {
				reordered = append(reordered, sess.Pool[i])
			}
		}
		if len(reordered) != len(sess.Pool) {
			return fmt.Errorf("served ids not all present in unserved pool")
		}
		sess.Pool = reordered
		sess.ServedCount += len(servedIDs)
		return nil
	})
}

// ReplaceUnserved swaps the pool suffix in one atomic write and marks
// the session reranked. A stale servedCount is rejected so a racing
// rerank can never clobber tracks served since it read the session.
func (s *Store) ReplaceUnserved(_ context.Context, id string, servedCount int, suffix []recommend.ScoredCandidate) error {
	return s.update(id, func(sess *recommend.Session) error {
		if servedCount != sess.ServedCount {
			return fmt.Errorf("stale served count %d, session at %d", servedCount, sess.ServedCount)
		}
		sess.Pool = append(sess.Pool[:servedCount:servedCount], suffix...)
		sess.Reranked = true
		return nil
	})
}

// update runs a read-modify-write cycle in one Badger transaction.
func (s *Store) update(id string, mutate func(*recommend.Session) error) error {
	key := []byte(sessionKeyPrefix + id)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return recommend.ErrUnknownSession
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		var sess recommend.Session
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		}); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		if sess.ExcludedIDs == nil {
			sess.ExcludedIDs = make(map[string]struct{})
		}

		if err := mutate(&sess); err != nil {
			return err
		}

		data, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		e := badger.NewEntry(key, data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
}
