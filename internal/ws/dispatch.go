package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fleet-tracking/internal/domain"
	"fleet-tracking/pkg"
)

// DispatchHub streams projection updates (driver positions and statuses) to
// connected operations clients. Read-only: clients authenticate and then just
// receive frames.
type DispatchHub struct {
	secret  []byte
	srv     *http.Server
	slogger *slog.Logger
	clients sync.Map // map[uint64]*dispatchClient
	nextID  atomic.Uint64
}

func NewDispatchHub(slogger *slog.Logger, secret []byte, port uint16) *DispatchHub {
	mux := http.NewServeMux()
	hub := &DispatchHub{
		secret:  secret,
		slogger: slogger,
	}
	mux.HandleFunc("/ws/dispatch", hub.connectDispatcher)
	hub.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return hub
}

func (hub *DispatchHub) StartServer() error {
	return hub.srv.ListenAndServe()
}

func (hub *DispatchHub) CloseServer() error {
	defer hub.clients.Clear()
	return hub.srv.Close()
}

// PublishView pushes one driver view to every connected client.
func (hub *DispatchHub) PublishView(view domain.DriverView) {
	hub.clients.Range(func(_, value any) bool {
		client, ok := value.(*dispatchClient)
		if !ok {
			hub.slogger.Info("unexpected client type in hub registry")
			return true
		}
		client.push(view)
		return true
	})
}

func (hub *DispatchHub) connectDispatcher(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.slogger.Error("upgrade error:", "error", err)
		return
	}
	defer conn.Close()

	err = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err != nil {
		return
	}
	auth := new(authMessage)
	err = conn.ReadJSON(auth)
	if err != nil {
		hub.slogger.Error("websocket_auth_timeout", "error", err)
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	if auth.Type != "auth" {
		conn.WriteJSON(map[string]string{"error": fmt.Sprintf("invalid auth type: %s", auth.Type)})
		return
	}
	claim, err := pkg.ParseTokenMyClaims(auth.Token, hub.secret)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	if claim.Role != "DISPATCH" && claim.Role != "ADMIN" {
		conn.WriteJSON(map[string]string{"error": "dispatch or admin role required"})
		return
	}

	conn.WriteJSON(map[string]string{"msg": "subscribed"})
	client := newDispatchClient()
	id := hub.nextID.Add(1)
	hub.clients.Store(id, client)
	defer hub.clients.Delete(id)
	go hub.pingPong(r.Context(), conn, client)
	hub.writer(conn, client)
}

func (hub *DispatchHub) pingPong(ctx context.Context, ws *websocket.Conn, client *dispatchClient) {
	defer client.shutdown()
	const (
		pingPeriod = 30 * time.Second
		pongWait   = 60 * time.Second
	)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(_ string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				ws.Close()
				return
			}
		}
	}
}

func (hub *DispatchHub) writer(conn *websocket.Conn, client *dispatchClient) {
	defer client.shutdown()
	for view := range client.sendCh {
		if err := conn.WriteJSON(view); err != nil {
			return
		}
	}
}
