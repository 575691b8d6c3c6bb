package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleet-tracking/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// closeGrace lets the writer drain frames already queued for a client
// before its send channel is torn down.
const closeGrace = 5 * time.Second

// dispatchClient is one subscribed operations console. The hub fans driver
// views out through sendCh; done gates pushes once the connection is dying.
type dispatchClient struct {
	once   sync.Once
	done   chan struct{}
	sendCh chan domain.DriverView
}

func newDispatchClient() *dispatchClient {
	return &dispatchClient{
		done:   make(chan struct{}),
		sendCh: make(chan domain.DriverView),
	}
}

func (c *dispatchClient) shutdown() {
	c.once.Do(func() {
		close(c.done)
		time.Sleep(closeGrace)
		close(c.sendCh)
	})
}

func (c *dispatchClient) push(view domain.DriverView) {
	select {
	case <-c.done:
		return
	case c.sendCh <- view:
		return
	}
}
