package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lockstep.rts/internal/protocol"
)

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c, history := s.handshake(r.Context(), conn)
		if c == nil {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: catch-up history first, then live ticks.
		go func() {
			defer cancel()
			for _, b := range history {
				if err := writeRaw(conn, b); err != nil {
					return
				}
			}
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.kick:
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "dropped"), time.Now().Add(time.Second))
					_ = conn.Close()
					return
				case b := <-c.errs:
					if err := writeRaw(conn, b); err != nil {
						return
					}
				case b := <-c.out:
					if err := writeRaw(conn, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			cmd, code := s.decodeCommand(msg)
			if code != "" {
				s.metrics.rejected.Add(1)
				s.replyError(c, code, "")
				continue
			}
			if !c.limiter.Allow() {
				s.metrics.rateLimited.Add(1)
				s.replyError(c, protocol.ErrRateLimit, "too many commands")
				continue
			}
			select {
			case s.inbox <- inboundCommand{sessionID: c.sessionID, cmd: cmd}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		s.sendLeave(c.sessionID)
	}
}

func (s *Server) sendLeave(sessionID string) {
	select {
	case s.leave <- sessionID:
	case <-s.done:
	}
}

func (s *Server) decodeCommand(msg []byte) (protocol.Command, string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.Command{}, protocol.ErrProtoBadRequest
	}
	if base.Type != protocol.TypeCommand {
		return protocol.Command{}, protocol.ErrProtoBadRequest
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.Command{}, protocol.ErrProtoVersion
	}
	if s.validator != nil {
		if err := s.validator.Validate(protocol.TypeCommand, msg); err != nil {
			return protocol.Command{}, protocol.ErrProtoBadRequest
		}
	}
	var cm protocol.CommandMsg
	if err := json.Unmarshal(msg, &cm); err != nil {
		return protocol.Command{}, protocol.ErrProtoBadRequest
	}
	return cm.Command, ""
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (*client, [][]byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		rejectHandshake(conn, protocol.ErrNotJoined, "expected HELLO")
		return nil, nil
	}
	if base.ProtocolVersion != protocol.Version {
		rejectHandshake(conn, protocol.ErrProtoVersion, "bad protocol_version")
		return nil, nil
	}
	if s.validator != nil {
		if err := s.validator.Validate(protocol.TypeHello, msg); err != nil {
			rejectHandshake(conn, protocol.ErrProtoBadRequest, err.Error())
			return nil, nil
		}
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		rejectHandshake(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil, nil
	}
	if d := hello.CatalogDigests; d != nil && *d != s.cfg.Catalogs {
		rejectHandshake(conn, protocol.ErrCatalogDigest, "catalog or tuning digest mismatch")
		return nil, nil
	}

	respCh := make(chan joinResponse, 1)
	select {
	case s.join <- joinRequest{sessionID: uuid.NewString(), hello: hello, resp: respCh}:
	case <-ctx.Done():
		return nil, nil
	case <-s.done:
		return nil, nil
	}
	var resp joinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		return nil, nil
	case <-s.done:
		return nil, nil
	}
	if resp.errCode != "" {
		rejectHandshake(conn, resp.errCode, "no free seat")
		return nil, nil
	}

	if err := writeJSON(conn, resp.welcome); err != nil {
		s.sendLeave(resp.client.sessionID)
		return nil, nil
	}
	return resp.client, resp.history
}

func rejectHandshake(conn *websocket.Conn, code, message string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeRaw(conn, b)
}

func writeRaw(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
