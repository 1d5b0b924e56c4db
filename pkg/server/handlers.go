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

package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/sessionmgr"
)

// ChatRequest is the body of POST /v1/sessions/:sessionId/chat
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (s *Server) handleHealthReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// handleCreateSession provisions a fresh sandbox and returns its handle.
func (s *Server) handleCreateSession(c *gin.Context) {
	sessionID, err := s.sessions.Create(c.Request.Context())
	if err != nil {
		klog.Errorf("Failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to provision sandbox",
			"code":  "PROVISION_FAILED",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": sessionID,
	})
}

// handleDestroySession tears the session down. Destruction is
// idempotent, so an unknown session still answers 204. Teardown runs
// detached from the request context; a client that disconnects
// mid-request must not leave a container half-removed.
func (s *Server) handleDestroySession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	s.sessions.Destroy(context.WithoutCancel(c.Request.Context()), sessionID)
	c.Status(http.StatusNoContent)
}

// handleChat runs one conversation turn and relays its events as SSE.
// Session resolution happens before the stream starts, so an unknown
// session is a plain 404 rather than an error event.
func (s *Server) handleChat(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "message is required",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	events, err := s.chat.Chat(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		if errors.Is(err, sessionmgr.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "session not found",
				"code":  "SESSION_NOT_FOUND",
			})
			return
		}
		klog.Errorf("Failed to start chat for session %s: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to start chat",
			"code":  "CHAT_FAILED",
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(string(ev.Type), ev.Data)
		return true
	})
}
