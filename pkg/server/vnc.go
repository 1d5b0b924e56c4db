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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/sheikhbox/sheikhbox/pkg/sessionmgr"
)

// vncUpgrader accepts the client leg of the relay. noVNC clients
// negotiate the binary subprotocol, so it is offered here.
var vncUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	Subprotocols:    []string{"binary"},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleVNC bridges a client websocket to the sandbox's VNC websocket.
// Bytes are relayed verbatim in both directions with no framing or
// protocol awareness; either side closing tears down both legs.
func (s *Server) handleVNC(c *gin.Context) {
	sessionID := c.Param("sessionId")

	sb, err := s.sessions.Resolve(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, sessionmgr.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "session not found",
				"code":  "SESSION_NOT_FOUND",
			})
			return
		}
		klog.Errorf("Failed to resolve session %s for VNC: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to resolve session",
			"code":  "SESSION_RESOLVE_FAILED",
		})
		return
	}

	clientConn, err := vncUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		klog.Errorf("Failed to upgrade VNC connection for session %s: %v", sessionID, err)
		return
	}
	defer clientConn.Close()

	sandboxConn, _, err := websocket.DefaultDialer.DialContext(c.Request.Context(), sb.VNCURL(), nil)
	if err != nil {
		klog.Errorf("Failed to dial sandbox VNC %s: %v", sb.VNCURL(), err)
		clientConn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "sandbox VNC unavailable"))
		return
	}
	defer sandboxConn.Close()

	klog.Infof("VNC relay established for session %s", sessionID)

	errCh := make(chan error, 2)
	go relayVNC(clientConn, sandboxConn, errCh)
	go relayVNC(sandboxConn, clientConn, errCh)

	// First failed leg ends the relay; the deferred closes unblock the
	// other pump.
	<-errCh
	klog.Infof("VNC relay closed for session %s", sessionID)
}

// relayVNC pumps websocket messages from src to dst until either side
// fails.
func relayVNC(dst, src *websocket.Conn, errCh chan<- error) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			errCh <- err
			return
		}
	}
}
