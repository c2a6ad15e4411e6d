// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package folio

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/folio/services/folio/engine"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionTTL is how long an idle session survives.
const DefaultSessionTTL = 30 * time.Minute

const sessionKeyPrefix = "folio/session/v1/"

// SessionStore keeps conversation state per session.
//
// # Description
//
//	Backed by an in-memory BadgerDB. Every write refreshes the entry's TTL,
//	so a session expires after DefaultSessionTTL (or the configured TTL) of
//	inactivity. Nothing is written to disk. Values are gob-encoded
//	engine.Conversation snapshots.
//
// # Thread Safety
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control;
//	read-modify-write of a single session must be serialized by the caller.
type SessionStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenSessionStore opens an in-memory session store. A ttl <= 0 selects
// DefaultSessionTTL.
func OpenSessionStore(ttl time.Duration, logger *slog.Logger) (*SessionStore, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return &SessionStore{db: db, ttl: ttl, logger: logger}, nil
}

// TTL returns the idle expiry applied to sessions.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create starts a session with an empty conversation and returns its ID.
func (s *SessionStore) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, id, engine.Conversation{}); err != nil {
		return "", err
	}
	s.logger.Debug("session created", slog.String("session_id", id))
	return id, nil
}

// Get returns the conversation of session id.
//
// # Outputs
//
//   - engine.Conversation: The stored state.
//   - error: ErrSessionNotFound when the session never existed or expired.
func (s *SessionStore) Get(ctx context.Context, id string) (engine.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return engine.Conversation{}, err
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return engine.Conversation{}, err
	}

	conv, err := decodeConversation(raw)
	if err != nil {
		return engine.Conversation{}, fmt.Errorf("session %s: %w", id, err)
	}
	return conv, nil
}

// Put stores conv under id and refreshes the session TTL.
func (s *SessionStore) Put(ctx context.Context, id string, conv engine.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encodeConversation(conv)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(sessionKey(id), raw).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Delete removes session id. Deleting an unknown session returns
// ErrSessionNotFound.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := sessionKey(id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("get session: %w", err)
		}
		return txn.Delete(key)
	})
}

// Close releases the underlying database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

func encodeConversation(conv engine.Conversation) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(conv); err != nil {
		return nil, fmt.Errorf("encoding conversation: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeConversation(raw []byte) (engine.Conversation, error) {
	var conv engine.Conversation
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&conv); err != nil {
		return engine.Conversation{}, fmt.Errorf("decoding conversation: %w", err)
	}
	return conv, nil
}
