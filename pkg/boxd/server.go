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

// Package boxd implements the HTTP daemon that runs inside every sandbox
// container and exposes command execution and file transfer to the
// orchestrator.
package boxd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

var startTime = time.Now()

// Config defines daemon configuration.
type Config struct {
	Port int `json:"port"`
}

// Server is the boxd HTTP server.
type Server struct {
	engine   *gin.Engine
	config   Config
	verifier *Verifier
}

// NewServer creates a boxd server. Request verification is enabled when
// the orchestrator's public key is present in the environment; otherwise
// the daemon runs open, which is only acceptable on isolated networks.
func NewServer(config Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	verifier, err := NewVerifierFromEnv()
	if err != nil {
		return nil, fmt.Errorf("boxd: load verifier key: %w", err)
	}
	if verifier == nil {
		klog.Warning("BOXD_PUBLIC_KEY not set, request verification disabled")
	}

	s := &Server{
		engine:   engine,
		config:   config,
		verifier: verifier,
	}

	api := engine.Group("/api")
	if verifier != nil {
		api.Use(verifier.Middleware())
	}
	{
		api.POST("/execute", s.ExecuteHandler)
		api.POST("/files", s.WriteFileHandler)
		api.GET("/files/*path", s.ReadFileHandler)
	}

	// Health check stays unauthenticated for provisioning probes.
	engine.GET("/health", HealthHandler)

	return s, nil
}

// Run starts the daemon.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	klog.Infof("boxd listening on %s", addr)
	return http.ListenAndServe(addr, s.engine)
}

// Engine exposes the gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// HealthHandler reports daemon liveness.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "boxd",
		"uptime":  time.Since(startTime).String(),
	})
}
