package agentgw

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/filegate/filegate/core/gate"
	"github.com/filegate/filegate/core/infra/bus"
	"github.com/filegate/filegate/core/infra/logging"
)

const senderID = "filegate-agent-gateway"

// Publisher is the publish subset of the bus the gateway needs.
type Publisher interface {
	Publish(subject string, env *bus.Envelope) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The in-page agent connects from arbitrary page origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts metadata fragment submissions from the in-page
// instrumentation agent over WebSocket. Each text message is one fragment;
// the gateway acknowledges synchronously and republishes valid fragments on
// the bus for asynchronous processing.
type Server struct {
	bus  Publisher
	addr string
	srv  *http.Server
}

func New(addr string, b Publisher) *Server {
	s := &Server{bus: b, addr: addr}
	mux := http.NewServeMux()
	mux.HandleFunc("/agent/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the gateway endpoints.
func (s *Server) ListenAndServe() error {
	logging.Info("agentgw", "listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type ack struct {
	OK    bool   `json:"ok"`
	GUID  string `json:"guid,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("agentgw", "ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer ws.Close()
	logging.Info("agentgw", "agent connected", "remote", r.RemoteAddr)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Error("agentgw", "ws read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		resp := s.ingest(data)
		if err := s.writeAck(ws, resp); err != nil {
			logging.Error("agentgw", "ws ack write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

// ingest validates one fragment submission and republishes it on the bus.
// Malformed submissions are dropped and logged, never fatal.
func (s *Server) ingest(data []byte) ack {
	var frag gate.MetadataFragment
	if err := json.Unmarshal(data, &frag); err != nil {
		logging.Error("agentgw", "malformed fragment dropped", "error", err)
		return ack{OK: false, Error: "malformed fragment"}
	}
	if frag.GUID == "" {
		logging.Error("agentgw", "fragment missing guid dropped")
		return ack{OK: false, Error: "missing guid"}
	}

	env, err := bus.NewEnvelope(senderID, "metadata_fragment", frag)
	if err != nil {
		logging.Error("agentgw", "fragment encode failed", "guid", frag.GUID, "error", err)
		return ack{OK: false, GUID: frag.GUID, Error: "encode failed"}
	}
	if err := s.bus.Publish(bus.SubjectTransferMetadata, env); err != nil {
		logging.Error("agentgw", "fragment publish failed", "guid", frag.GUID, "error", err)
		return ack{OK: false, GUID: frag.GUID, Error: "publish failed"}
	}
	logging.Info("agentgw", "fragment accepted", "guid", frag.GUID, "url", frag.SourceURL)
	return ack{OK: true, GUID: frag.GUID}
}

func (s *Server) writeAck(ws *websocket.Conn, resp ack) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
