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

package docker

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sheikhbox/sheikhbox/pkg/boxd"
)

const (
	rsaKeySize    = 2048
	jwtExpiration = 5 * time.Minute
)

// Signer signs outgoing boxd requests with a process-lifetime RSA key.
// The matching public key is injected into every container this process
// provisions, so sandboxes only accept requests from their orchestrator.
type Signer struct {
	privateKey *rsa.PrivateKey
}

// NewSigner generates a fresh RSA key pair.
func NewSigner() (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key pair: %w", err)
	}
	return &Signer{privateKey: key}, nil
}

// PublicKeyPEM returns the public key in PEM format.
func (s *Signer) PublicKeyPEM() ([]byte, error) {
	pubBytes, err := x509.MarshalPKIXPublicKey(&s.privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	}), nil
}

// SignRequest attaches a short-lived bearer token bound to the request's
// method, path and body.
func (s *Signer) SignRequest(req *http.Request, body []byte) error {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                   "sheikhbox",
		"iat":                   now.Unix(),
		"exp":                   now.Add(jwtExpiration).Unix(),
		boxd.CanonicalHashClaim: boxd.CanonicalRequestHash(req.Method, req.URL.Path, body),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tokenString)
	return nil
}
