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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoVNC stands in for the in-sandbox VNC websocket endpoint. It
// echoes every frame back unchanged.
func startEchoVNC(t *testing.T) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestVNC_RelaysBytes(t *testing.T) {
	vncURL := startEchoVNC(t)
	sessions := &fakeSessions{sandboxes: map[string]*fakeSandbox{
		"sess-1": {id: "sess-1", vncURL: vncURL},
	}}
	srv := newTestServer(t, sessions, &fakeChat{})

	ts := httptest.NewServer(srv.Engine())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/sess-1/vnc"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	// RFB handshake bytes pass through untouched.
	payload := []byte("RFB 003.008\n")
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload))

	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, payload, data)

	// A second round trip confirms the relay stays up.
	payload2 := []byte{0x00, 0x01, 0x02, 0xff}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload2))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload2, data)
}

func TestVNC_SandboxUnreachable(t *testing.T) {
	sessions := &fakeSessions{sandboxes: map[string]*fakeSandbox{
		"sess-1": {id: "sess-1", vncURL: "ws://127.0.0.1:1/vnc"},
	}}
	srv := newTestServer(t, sessions, &fakeChat{})

	ts := httptest.NewServer(srv.Engine())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/sess-1/vnc"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	// The upgrade succeeds, then the server closes once the dial to the
	// sandbox fails.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
