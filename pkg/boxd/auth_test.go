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

package boxd

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pubKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})
	return privateKey, pubKeyPEM
}

func signTestRequest(t *testing.T, key *rsa.PrivateKey, method, path string, body []byte) string {
	t.Helper()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":              "sheikhbox",
		"iat":              now.Unix(),
		"exp":              now.Add(5 * time.Minute).Unix(),
		CanonicalHashClaim: CanonicalRequestHash(method, path, body),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func authTestServer(t *testing.T, pubKeyPEM []byte) *Server {
	t.Helper()
	t.Setenv(PublicKeyEnv, base64.StdEncoding.EncodeToString(pubKeyPEM))
	server, err := NewServer(Config{Port: 0})
	require.NoError(t, err)
	return server
}

func TestVerifier_SignedRequest(t *testing.T) {
	key, pubKeyPEM := newTestKeyPair(t)
	server := authTestServer(t, pubKeyPEM)

	body := []byte(`{"command": "echo hi"}`)
	token := signTestRequest(t, key, "POST", "/api/execute", body)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/execute", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifier_MissingToken(t *testing.T) {
	_, pubKeyPEM := newTestKeyPair(t)
	server := authTestServer(t, pubKeyPEM)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/execute", bytes.NewBufferString(`{"command": "echo hi"}`))
	req.Header.Set("Content-Type", "application/json")
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifier_WrongKey(t *testing.T) {
	_, pubKeyPEM := newTestKeyPair(t)
	otherKey, _ := newTestKeyPair(t)
	server := authTestServer(t, pubKeyPEM)

	body := []byte(`{"command": "echo hi"}`)
	token := signTestRequest(t, otherKey, "POST", "/api/execute", body)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/execute", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifier_TamperedBody(t *testing.T) {
	key, pubKeyPEM := newTestKeyPair(t)
	server := authTestServer(t, pubKeyPEM)

	token := signTestRequest(t, key, "POST", "/api/execute", []byte(`{"command": "echo hi"}`))

	// Replay the token with a different body.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/execute", bytes.NewBufferString(`{"command": "rm -rf /"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifier_TokenBoundToPath(t *testing.T) {
	key, pubKeyPEM := newTestKeyPair(t)
	server := authTestServer(t, pubKeyPEM)

	body := []byte(`{"path": "/tmp/a.txt", "content": "x"}`)
	token := signTestRequest(t, key, "POST", "/api/execute", body)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/files", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifier_HealthUnauthenticated(t *testing.T) {
	_, pubKeyPEM := newTestKeyPair(t)
	server := authTestServer(t, pubKeyPEM)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewVerifier_RejectsGarbage(t *testing.T) {
	_, err := NewVerifier([]byte("not a pem block"))
	assert.Error(t, err)
}

func TestNewVerifierFromEnv_Unset(t *testing.T) {
	t.Setenv(PublicKeyEnv, "")
	v, err := NewVerifierFromEnv()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCanonicalRequestHash_Deterministic(t *testing.T) {
	body := []byte(`{"command": "ls"}`)
	a := CanonicalRequestHash("POST", "/api/execute", body)
	b := CanonicalRequestHash("post", "/api/execute", body)
	assert.Equal(t, a, b, "method comparison is case insensitive")

	c := CanonicalRequestHash("POST", "/api/files", body)
	assert.NotEqual(t, a, c)
}
