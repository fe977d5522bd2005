package conn

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	gorilla "github.com/gorilla/websocket"
)

// CoderDialer dials with github.com/coder/websocket.
type CoderDialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
}

func (d CoderDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, err
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = 1 << 20
	}
	c.SetReadLimit(limit)
	return &coderConn{c: c}, nil
}

type coderConn struct{ c *websocket.Conn }

func (cc *coderConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := cc.c.Read(ctx)
	return data, err
}

func (cc *coderConn) Write(ctx context.Context, data []byte) error {
	return cc.c.Write(ctx, websocket.MessageText, data)
}

func (cc *coderConn) Close(reason string) error {
	return cc.c.Close(websocket.StatusNormalClosure, reason)
}

// GorillaDialer dials with github.com/gorilla/websocket. Reads honour only
// the context deadline; the manager closes the socket to cancel them.
type GorillaDialer struct {
	Dialer *gorilla.Dialer
}

func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dl := d.Dialer
	if dl == nil {
		dl = gorilla.DefaultDialer
	}
	c, _, err := dl.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{c: c}, nil
}

type gorillaConn struct {
	c   *gorilla.Conn
	wmu sync.Mutex
}

func (gc *gorillaConn) Read(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = gc.c.SetReadDeadline(dl)
	}
	_, data, err := gc.c.ReadMessage()
	return data, err
}

func (gc *gorillaConn) Write(ctx context.Context, data []byte) error {
	gc.wmu.Lock()
	defer gc.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = gc.c.SetWriteDeadline(dl)
	}
	return gc.c.WriteMessage(gorilla.TextMessage, data)
}

func (gc *gorillaConn) Close(reason string) error {
	msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, reason)
	_ = gc.c.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(time.Second))
	return gc.c.Close()
}

// NewDialer picks a transport by name; anything but "gorilla" gets coder.
func NewDialer(transport string) Dialer {
	if transport == "gorilla" {
		return GorillaDialer{}
	}
	return CoderDialer{}
}
