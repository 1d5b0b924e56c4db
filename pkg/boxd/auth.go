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
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// PublicKeyEnv carries the orchestrator's base64-encoded PEM public
	// key, injected into the container environment at provisioning time.
	PublicKeyEnv = "BOXD_PUBLIC_KEY"

	// MaxBodySize limits request bodies to prevent memory exhaustion.
	MaxBodySize = 32 << 20

	// CanonicalHashClaim is the JWT claim binding the token to one request.
	CanonicalHashClaim = "canonical_request_sha256"
)

// Verifier validates the signed JWT attached to every boxd API request.
type Verifier struct {
	publicKey *rsa.PublicKey
}

// NewVerifierFromEnv builds a Verifier from the PublicKeyEnv variable.
// Returns (nil, nil) when the variable is unset so callers can run open.
func NewVerifierFromEnv() (*Verifier, error) {
	keyB64 := os.Getenv(PublicKeyEnv)
	if keyB64 == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode base64 %s: %w", PublicKeyEnv, err)
	}
	return NewVerifier(data)
}

// NewVerifier builds a Verifier from a PEM-encoded RSA public key.
func NewVerifier(pemData []byte) (*Verifier, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return &Verifier{publicKey: rsaPub}, nil
}

// Middleware verifies the Bearer token signature and its binding to the
// request being served.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing bearer token",
				"code":  http.StatusUnauthorized,
			})
			return
		}
		tokenString := strings.TrimPrefix(auth, "Bearer ")

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "failed to read request body",
				"code":  http.StatusBadRequest,
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.publicKey, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
				"code":  http.StatusUnauthorized,
			})
			return
		}

		want, _ := claims[CanonicalHashClaim].(string)
		if want == "" || want != CanonicalRequestHash(c.Request.Method, c.Request.URL.Path, body) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "request does not match token",
				"code":  http.StatusUnauthorized,
			})
			return
		}

		c.Next()
	}
}

// CanonicalRequestHash hashes the parts of a request covered by the
// signature: method, path and body digest, newline separated. The signer
// on the orchestrator side must produce the identical value.
func CanonicalRequestHash(method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		path,
		fmt.Sprintf("%x", bodyHash),
	}, "\n")
	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", sum)
}
