// Package wsline carries the newline-delimited chat protocol over WebSocket.
// Each inbound text message is read as one or more lines and each outbound
// line is written as its own text message.
package wsline

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn adapts a WebSocket connection to io.ReadWriteCloser. It supports one
// concurrent reader and one concurrent writer; Close may be called from any
// goroutine.
type Conn struct {
	ws   *websocket.Conn
	rbuf []byte

	wmu  sync.Mutex
	wbuf bytes.Buffer

	closeOnce sync.Once
	closeErr  error
}

func NewConn(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(maxMessageSize)
	return &Conn{ws: ws}
}

func (c *Conn) Read(p []byte) (int, error) {
	for len(c.rbuf) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		data = bytes.TrimRight(data, "\r\n")
		c.rbuf = append(data, '\n')
	}
	n := copy(p, c.rbuf)
	c.rbuf = c.rbuf[n:]
	return n, nil
}

// Write buffers p and sends every complete line as a text message. A partial
// trailing line waits for its newline.
func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.wbuf.Write(p)
	for {
		i := bytes.IndexByte(c.wbuf.Bytes(), '\n')
		if i < 0 {
			return len(p), nil
		}
		line := c.wbuf.Next(i + 1)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, line[:i]); err != nil {
			return 0, err
		}
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Handler upgrades each request and hands the connection to serve, which
// owns it until it returns.
func Handler(serve func(conn io.ReadWriteCloser, remote string), logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("upgrade error", "error", err)
			return
		}
		logger.Info("websocket client connected", "addr", r.RemoteAddr)
		serve(NewConn(ws), r.RemoteAddr)
	})
}
