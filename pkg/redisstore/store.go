/*
Copyright The SheikhBox Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redisstore persists session records in Redis so that a
// restarted process, or another replica behind the same load balancer,
// can reattach to a sandbox by session ID.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// ErrNotFound indicates that no record exists for the session ID.
var ErrNotFound = errors.New("redisstore: not found")

// Record is the durable part of a session: enough to find the sandbox
// again, nothing more. Conversation state is never persisted.
type Record struct {
	SessionID     string    `json:"session_id"`
	ContainerName string    `json:"container_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is the session record store contract consumed by the session
// manager.
type Store interface {
	// Bind writes the record under the session ID with the given TTL.
	Bind(ctx context.Context, sessionID string, rec *Record, ttl time.Duration) error
	// Get returns the record for the session ID, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Record, error)
	// Delete removes the record. Missing records are treated as success.
	Delete(ctx context.Context, sessionID string) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

type store struct {
	rdb           *redisv9.Client
	sessionPrefix string
}

// New creates a Store backed by go-redis.
func New(opts *redisv9.Options) Store {
	return &store{
		rdb:           redisv9.NewClient(opts),
		sessionPrefix: "session:",
	}
}

func (s *store) key(sessionID string) string {
	return s.sessionPrefix + sessionID
}

func (s *store) Bind(ctx context.Context, sessionID string, rec *Record, ttl time.Duration) error {
	if rec == nil {
		return errors.New("Bind: record is nil")
	}
	if sessionID == "" {
		return errors.New("Bind: sessionID is empty")
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("Bind: marshal record: %w", err)
	}

	key := s.key(sessionID)
	if err := s.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("Bind: redis SET %s: %w", key, err)
	}
	return nil
}

func (s *store) Get(ctx context.Context, sessionID string) (*Record, error) {
	key := s.key(sessionID)

	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: redis GET %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("Get: unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *store) Delete(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("Delete: redis DEL %s: %w", key, err)
	}
	return nil
}

func (s *store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
