package service

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireReply struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

func dialService(t *testing.T, f *serviceFixture, service string) *websocket.Conn {
	t.Helper()
	srv := NewServer(f.svc, f.l, f.conns, ServerOptions{Path: "/audio"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/audio?service=" + service
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func roundTrip(t *testing.T, ws *websocket.Conn, req map[string]any) wireReply {
	t.Helper()
	require.NoError(t, ws.WriteJSON(req))
	return readReply(t, ws)
}

func readReply(t *testing.T, ws *websocket.Conn) wireReply {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply wireReply
	require.NoError(t, ws.ReadJSON(&reply))
	return reply
}

func TestServerRequestAndPush(t *testing.T) {
	f := newServiceFixture(t)
	ws := dialService(t, f, "com.webos.app.music")

	reply := roundTrip(t, ws, map[string]any{
		"id":     "sub",
		"method": "/getInputVolume",
		"params": map[string]any{"streamType": "pmedia", "subscribe": true},
	})
	assert.Equal(t, "sub", reply.ID)
	assert.Equal(t, true, reply.Payload["subscribed"])
	assert.EqualValues(t, 80, reply.Payload["volume"])

	require.NoError(t, ws.WriteJSON(map[string]any{
		"id":     "set",
		"method": "/setInputVolume",
		"params": map[string]any{"streamType": "pmedia", "volume": 40},
	}))
	// 推送在处理请求的过程中发出，先于应答
	push := readReply(t, ws)
	assert.Equal(t, "sub", push.ID)
	assert.EqualValues(t, 40, push.Payload["volume"])

	reply = readReply(t, ws)
	assert.Equal(t, "set", reply.ID)
	assert.Equal(t, true, reply.Payload["returnValue"])

	reply = roundTrip(t, ws, map[string]any{"id": "bad", "method": "/nope"})
	assert.EqualValues(t, CodeUnknownMethod, reply.Payload["errorCode"])
}

func TestServerMalformedRequest(t *testing.T) {
	f := newServiceFixture(t)
	ws := dialService(t, f, "com.webos.app.music")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	reply := readReply(t, ws)
	assert.Equal(t, false, reply.Payload["returnValue"])
	assert.EqualValues(t, CodeInvalidParameter, reply.Payload["errorCode"])
}

func TestServerCancelSubscription(t *testing.T) {
	f := newServiceFixture(t)
	ws := dialService(t, f, "com.webos.app.music")

	roundTrip(t, ws, map[string]any{
		"id":     "sub",
		"method": "/getInputVolume",
		"params": map[string]any{"streamType": "pmedia", "subscribe": true},
	})
	require.NoError(t, ws.WriteJSON(map[string]any{"cancel": "sub"}))

	reply := roundTrip(t, ws, map[string]any{
		"id":     "set",
		"method": "/setInputVolume",
		"params": map[string]any{"streamType": "pmedia", "volume": 40},
	})
	assert.Equal(t, "set", reply.ID)

	// 订阅已取消，下一条消息应是这次请求的应答
	reply = roundTrip(t, ws, map[string]any{"id": "get", "method": "/getInputVolume", "params": map[string]any{"streamType": "pmedia"}})
	assert.Equal(t, "get", reply.ID)
}

func TestServerCloseUnregistersTracks(t *testing.T) {
	f := newServiceFixture(t)
	ws := dialService(t, f, "com.webos.app.music")

	reply := roundTrip(t, ws, map[string]any{
		"id":     "1",
		"method": "/registerTrack",
		"params": map[string]any{"streamType": "pmedia"},
	})
	require.Equal(t, true, reply.Payload["returnValue"])
	require.NotEmpty(t, reply.Payload["trackId"])

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		var n int
		f.do(t, func() { n = f.tracks.Count() })
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}
