package wsline

import (
	"bufio"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTest(t *testing.T, serve func(io.ReadWriteCloser, string)) *websocket.Conn {
	t.Helper()
	hs := httptest.NewServer(Handler(serve, nil))
	t.Cleanup(hs.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	return ws
}

func readText(t *testing.T, ws *websocket.Conn) string {
	t.Helper()
	typ, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	return string(data)
}

func TestConn_LinesRoundTrip(t *testing.T) {
	ws := dialTest(t, func(conn io.ReadWriteCloser, _ string) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			_, _ = io.WriteString(conn, strings.ToUpper(line))
		}
	})

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hello\r\n")))
	assert.Equal(t, "HELLO", readText(t, ws))

	// One message carrying two lines yields two replies.
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("a\nb")))
	assert.Equal(t, "A", readText(t, ws))
	assert.Equal(t, "B", readText(t, ws))
}

func TestConn_WriteSplitsAndHoldsPartialLines(t *testing.T) {
	ws := dialTest(t, func(conn io.ReadWriteCloser, _ string) {
		defer conn.Close()
		_, _ = io.WriteString(conn, "one\ntw")
		_, _ = io.WriteString(conn, "o\n")
	})

	assert.Equal(t, "one", readText(t, ws))
	assert.Equal(t, "two", readText(t, ws))

	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestConn_PeerCloseReadsAsEOF(t *testing.T) {
	got := make(chan error, 1)
	ws := dialTest(t, func(conn io.ReadWriteCloser, _ string) {
		defer conn.Close()
		_, err := conn.Read(make([]byte, 16))
		got <- err
	})

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	require.NoError(t, ws.WriteMessage(websocket.CloseMessage, msg))

	select {
	case err := <-got:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("server read did not return")
	}
}
