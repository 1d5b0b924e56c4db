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

// Package sessionmgr owns the mapping from session identifiers to live
// sandbox handles. It is the single writer of that registry: everything
// above it borrows sandboxes per call.
package sessionmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/redisstore"
	"github.com/sheikhbox/sheikhbox/pkg/sandbox"
)

// recordTTL bounds how long a session record outlives its last Bind.
// The in-container service timeout garbage-collects the sandbox itself.
const recordTTL = 24 * time.Hour

// Manager creates, resolves and destroys sessions. The registry lock
// covers map mutation only; provisioning and teardown happen outside it.
type Manager struct {
	prov    sandbox.Provisioner
	records RecordStore // may be nil

	mu     sync.Mutex
	active map[string]sandbox.Sandbox
	locks  map[string]*sync.Mutex
}

// New returns a Manager with an empty registry. records may be nil.
func New(prov sandbox.Provisioner, records RecordStore) *Manager {
	return &Manager{
		prov:    prov,
		records: records,
		active:  make(map[string]sandbox.Sandbox),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Create provisions a new sandbox and registers it under the sandbox's
// own identifier, which becomes the session ID.
func (m *Manager) Create(ctx context.Context) (string, error) {
	sb, err := m.prov.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	id := sb.ID()
	m.register(id, sb)

	if m.records != nil {
		rec := &redisstore.Record{
			SessionID:     id,
			ContainerName: id,
			CreatedAt:     time.Now().UTC(),
		}
		if err := m.records.Bind(ctx, id, rec, recordTTL); err != nil {
			// Record writes are advisory; the session works without them.
			klog.Errorf("Failed to bind session record %s: %v", id, err)
		}
	}

	return id, nil
}

// Resolve returns the registered handle for the session, attempting a
// one-shot reattachment through the provisioner when the registry has no
// entry. This path matters for horizontally scaled deployments where the
// registry is process-local but the sandbox is not. With a record store
// configured, the record gates reattachment: Bind writes it on create and
// Delete removes it on destroy, so a missing record means the session was
// torn down (or its record expired) and a leftover container must not be
// adopted as a live session.
func (m *Manager) Resolve(ctx context.Context, id string) (sandbox.Sandbox, error) {
	m.mu.Lock()
	sb, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		return sb, nil
	}

	if m.records != nil {
		if _, err := m.records.Get(ctx, id); err != nil {
			if errors.Is(err, redisstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
			// A record store outage should not take resolution down
			// with it; fall through to the provisioner.
			klog.Errorf("Session record lookup for %s failed: %v", id, err)
		}
	}

	sb, err := m.prov.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return m.register(id, sb), nil
}

// register installs the handle unless another goroutine won the race, in
// which case the existing handle is kept. At most one live handle per
// session ID is ever registered.
func (m *Manager) register(id string, sb sandbox.Sandbox) sandbox.Sandbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.active[id]; ok {
		return existing
	}
	m.active[id] = sb
	return sb
}

// Destroy releases the session's sandbox. Destruction is best-effort and
// idempotent: failures are logged, a second call is a no-op, and a
// sandbox orphaned by a process restart is still torn down by ID. The
// session's lock entry is dropped on the way out; container names are
// never reused, so a fresh mutex for the same ID cannot race a holder of
// the old one.
func (m *Manager) Destroy(ctx context.Context, id string) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()
	defer m.dropSessionLock(id)

	m.mu.Lock()
	sb, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()

	if !ok {
		// Not registered here; the sandbox may still exist.
		reattached, err := m.prov.Get(ctx, id)
		if err != nil {
			klog.V(4).Infof("Destroy %s: nothing to reattach: %v", id, err)
			m.deleteRecord(ctx, id)
			return
		}
		sb = reattached
	}

	if err := sb.Destroy(ctx); err != nil {
		klog.Errorf("Failed to destroy sandbox %s: %v", id, err)
	}
	m.deleteRecord(ctx, id)
}

func (m *Manager) deleteRecord(ctx context.Context, id string) {
	if m.records == nil {
		return
	}
	if err := m.records.Delete(ctx, id); err != nil {
		klog.Errorf("Failed to delete session record %s: %v", id, err)
	}
}

// LockSession acquires the per-session exclusive-use lock. A chat
// invocation holds it for its whole duration so that concurrent calls
// for the same session cannot interleave tool execution on the single
// in-sandbox desktop.
func (m *Manager) LockSession(id string) {
	m.sessionLock(id).Lock()
}

// UnlockSession releases the per-session lock.
func (m *Manager) UnlockSession(id string) {
	m.sessionLock(id).Unlock()
}

func (m *Manager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// dropSessionLock removes the lock entry so destroyed sessions and
// unknown IDs do not accumulate mutexes for the process lifetime.
func (m *Manager) dropSessionLock(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, id)
}

// Shutdown destroys every registered sandbox, best-effort. Called at
// process teardown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Destroy(ctx, id)
	}
}
