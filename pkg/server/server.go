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

// Package server exposes the session lifecycle, chat stream, and VNC
// relay over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/chat"
	"github.com/sheikhbox/sheikhbox/pkg/sandbox"
)

// SessionService is the session lifecycle surface the handlers need.
// *sessionmgr.Manager satisfies it.
type SessionService interface {
	Create(ctx context.Context) (string, error)
	Resolve(ctx context.Context, id string) (sandbox.Sandbox, error)
	Destroy(ctx context.Context, id string)
}

// ChatService runs one conversation turn and streams its events.
// *chat.Orchestrator satisfies it.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (<-chan chat.Event, error)
}

// Server is the main structure for the SheikhBox API server
type Server struct {
	config     *Config
	engine     *gin.Engine
	httpServer *http.Server
	sessions   SessionService
	chat       ChatService
}

// NewServer creates a new SheikhBox API server instance
func NewServer(config *Config, sessions SessionService, chatSvc ChatService) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session service cannot be nil")
	}
	if chatSvc == nil {
		return nil, fmt.Errorf("chat service cannot be nil")
	}

	// Set default values for concurrency settings
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = 1000 // Default limit
	}

	// Set Gin mode based on environment
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:   config,
		sessions: sessions,
		chat:     chatSvc,
	}

	server.setupRoutes()

	return server, nil
}

// concurrencyLimitMiddleware limits the number of concurrent requests
func (s *Server) concurrencyLimitMiddleware() gin.HandlerFunc {
	concurrency := make(chan struct{}, s.config.MaxConcurrentRequests)
	return func(c *gin.Context) {
		// Try to acquire a slot in the semaphore
		select {
		case concurrency <- struct{}{}:
			defer func() {
				<-concurrency
			}()
			c.Next()
		default:
			// No slots available
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "server overloaded, please try again later",
				"code":  "SERVER_OVERLOADED",
			})
			c.Abort()
		}
	}
}

// setupRoutes configures HTTP routes using Gin
func (s *Server) setupRoutes() {
	s.engine = gin.New()

	// Health check endpoints (no authentication required, no concurrency limit)
	s.engine.GET("/health/live", s.handleHealthLive)
	s.engine.GET("/health/ready", s.handleHealthReady)

	// API v1 routes with concurrency limiting
	v1 := s.engine.Group("/v1")
	v1.Use(gin.Logger())
	v1.Use(gin.Recovery())

	v1.Use(s.concurrencyLimitMiddleware())

	v1.POST("/sessions", s.handleCreateSession)
	v1.DELETE("/sessions/:sessionId", s.handleDestroySession)
	v1.POST("/sessions/:sessionId/chat", s.handleChat)
	v1.GET("/sessions/:sessionId/vnc", s.handleVNC)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start starts the SheikhBox API server
func (s *Server) Start(ctx context.Context) error {
	addr := ":" + s.config.Port

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		IdleTimeout: 90 * time.Second, // golang http default transport's idletimeout is 90s
	}

	// Listen for shutdown signal in goroutine
	go func() {
		<-ctx.Done()
		klog.Info("Shutting down SheikhBox server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("Server shutdown error: %v", err)
		}
	}()

	klog.Infof("SheikhBox server listening on %s", addr)

	if s.config.EnableTLS {
		if s.config.TLSCert == "" || s.config.TLSKey == "" {
			return fmt.Errorf("TLS enabled but cert/key not provided")
		}
		return s.httpServer.ListenAndServeTLS(s.config.TLSCert, s.config.TLSKey)
	}

	return s.httpServer.ListenAndServe()
}
