package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gridscout.ai/internal/protocol"
	"gridscout.ai/internal/sim/runtime"
)

type Server struct {
	rt  *runtime.Runtime
	log *log.Logger

	// AllowRemote accepts observers from non-loopback addresses.
	AllowRemote bool

	upgrader websocket.Upgrader
}

func NewServer(rt *runtime.Runtime, logger *log.Logger) *Server {
	return &Server{
		rt:  rt,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// StateHandler serves the latest TICK frame, renders included.
func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.rt.State())
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != protocol.TypeSubscribe {
			reject(conn, protocol.ErrProtoBadRequest, "expected SUBSCRIBE")
			return
		}
		if sub.ProtocolVersion != protocol.Version {
			reject(conn, protocol.ErrProtoVersion, "unsupported protocol_version")
			return
		}

		obs, welcome := s.rt.Subscribe(sub)
		defer s.rt.Unsubscribe(obs.ID)
		if err := writeJSON(conn, welcome); err != nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		replies := make(chan []byte, 16)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-replies:
				case b = <-obs.Out:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					cancel()
					return
				}
			}
		}()

		// Reader loop: COMMAND frames upstream.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var out any
			base, err := protocol.DecodeBase(msg)
			switch {
			case err != nil:
				out = protocol.NewError(protocol.ErrProtoBadRequest, "bad json")
			case base.Type != protocol.TypeCommand:
				out = protocol.NewError(protocol.ErrProtoBadRequest, "unexpected "+base.Type)
			case base.ProtocolVersion != protocol.Version:
				out = protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version")
			default:
				var cmd protocol.CommandMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					out = protocol.NewError(protocol.ErrProtoBadRequest, "bad COMMAND")
					break
				}
				reply := s.rt.Handle(cmd)
				if s.log != nil {
					s.log.Printf("observer %s: %q accepted=%v %s", obs.ID, cmd.Text, reply.Accepted, reply.Code)
				}
				out = reply
			}
			b, _ := json.Marshal(out)
			select {
			case replies <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func reject(conn *websocket.Conn, code, msg string) {
	_ = writeJSON(conn, protocol.NewError(code, msg))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
