package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"nfcbridge/reader"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := http.Header{"Origin": []string{"http://dashboard.local:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHandler_RoundTrip(t *testing.T) {
	h := New(Options{
		State:  func() reader.State { return reader.State{Available: true, Attached: true, Name: "PN532"} },
		Logger: zerolog.Nop(),
	})
	srv := httptest.NewServer(Handler(h, zerolog.Nop()))
	defer srv.Close()

	conn := dial(t, srv)
	m := readJSON(t, conn)
	require.Equal(t, "CONNECTED", m["type"])
	require.Equal(t, "PN532", m["reader_name"])

	require.NoError(t, h.Publish(NewScan("04A32B91", "PN532", time.Now())))
	m = readJSON(t, conn)
	require.Equal(t, "SCAN", m["type"])
	require.Equal(t, "04A32B91", m["uid"])
	require.Equal(t, "PN532", m["reader"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING"}))
	require.Equal(t, "PONG", readJSON(t, conn)["type"])

	h.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHandler_ClientDisconnect(t *testing.T) {
	h := New(Options{Logger: zerolog.Nop()})
	defer h.Close()
	srv := httptest.NewServer(Handler(h, zerolog.Nop()))
	defer srv.Close()

	a := dial(t, srv)
	readJSON(t, a)
	b := dial(t, srv)
	m := readJSON(t, b)
	require.Equal(t, float64(2), m["connected_clients"])

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return h.Count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish(NewError("boom", time.Now())))
	m = readJSON(t, b)
	require.Equal(t, "ERROR", m["type"])
	require.Equal(t, "boom", m["error"])
}

func TestHandler_PlainHTTP(t *testing.T) {
	h := New(Options{Logger: zerolog.Nop()})
	defer h.Close()
	srv := httptest.NewServer(Handler(h, zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, 0, h.Count())
}
