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

package sessionmgr

import (
	"context"
	"errors"
	"time"

	"github.com/sheikhbox/sheikhbox/pkg/redisstore"
)

var (
	// ErrSessionNotFound indicates that the session is neither registered
	// in this process nor reattachable through the provisioner. Mapped to
	// HTTP 404 at the boundary.
	ErrSessionNotFound = errors.New("sessionmgr: session not found")

	// ErrProvisioning indicates that the provisioning collaborator could
	// not produce a sandbox. Mapped to HTTP 5xx at the boundary; retry
	// belongs to the collaborator.
	ErrProvisioning = errors.New("sessionmgr: sandbox provisioning failed")
)

// RecordStore is the subset of the redis session store the manager
// needs. A nil RecordStore means registry-only operation: sessions are
// still fully functional, but other replicas cannot reattach.
type RecordStore interface {
	Bind(ctx context.Context, sessionID string, rec *redisstore.Record, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*redisstore.Record, error)
	Delete(ctx context.Context, sessionID string) error
}
