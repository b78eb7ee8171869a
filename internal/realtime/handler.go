package realtime

import (
	"net/http"
	"strings"

	"opsline/pkg/auth"
	"opsline/pkg/config"
	"opsline/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Handler upgrades authenticated HTTP requests to WebSocket connections and
// hands them to the hub.
type Handler struct {
	hub      *Hub
	secret   string
	cfg      *config.Config
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, secret string, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		secret: secret,
		cfg:    cfg,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeWS authenticates the handshake before upgrading. Browsers cannot set
// headers on WebSocket dials, so the token may ride in the "token" query
// parameter instead of the Authorization header.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.log.Warn("Rejected WebSocket handshake", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &Client{
		hub:            h.hub,
		conn:           conn,
		send:           make(chan []byte, h.cfg.WSSendBufferSize),
		identity:       identity,
		rooms:          make(map[string]bool),
		writeWait:      h.cfg.WSWriteWait,
		pongWait:       h.cfg.WSPongWait,
		maxMessageSize: h.cfg.WSMaxMessageSize,
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *Handler) authenticate(r *http.Request) (auth.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	return auth.Verify(h.secret, token)
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/ws", h.ServeWS)
}
