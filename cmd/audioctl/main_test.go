package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon 先推送一条订阅消息，再回复请求
func fakeDaemon(t *testing.T, reply map[string]any) (string, <-chan request) {
	t.Helper()
	got := make(chan request, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "com.test", r.URL.Query().Get("service"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		got <- req
		_ = conn.WriteJSON(map[string]any{"id": "older", "payload": map[string]any{"volume": 1}})
		_ = conn.WriteJSON(map[string]any{"id": req.ID, "payload": reply})
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/audio", got
}

func TestRunRequest(t *testing.T) {
	tests := []struct {
		name    string
		reply   map[string]any
		wantErr string
	}{
		{name: "success", reply: map[string]any{"returnValue": true}},
		{name: "failure", reply: map[string]any{"returnValue": false, "errorText": "Unknown stream type"}, wantErr: "Unknown stream type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, got := fakeDaemon(t, tt.reply)
			err := run(context.Background(), addr, "com.test", "getInputVolume",
				json.RawMessage(`{"streamType":"pmedia"}`), false, 2*time.Second)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			req := <-got
			assert.Equal(t, "/getInputVolume", req.Method)
			assert.JSONEq(t, `{"streamType":"pmedia"}`, string(req.Params))
		})
	}
}
