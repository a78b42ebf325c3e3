package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/chess-arena/internal/msgcat"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/orchestrator"
	"github.com/kapu/chess-arena/internal/session"
	"github.com/kapu/chess-arena/pkg/gamedto"
)

const maxMessageBytes = 8 << 10

// Handler upgrades GET /ws and pumps client actions into the
// orchestrator. Identity comes from the X-User-Id header (or the user
// query parameter for browser clients that cannot set headers); an
// authenticating proxy in front of the service is assumed.
type Handler struct {
	orch           *orchestrator.Orchestrator
	cat            *msgcat.Catalog
	originPatterns []string
}

func NewHandler(orch *orchestrator.Orchestrator, cat *msgcat.Catalog, originPatterns []string) *Handler {
	return &Handler{orch: orch, cat: cat, originPatterns: originPatterns}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("user"))
	}
	if userID == "" {
		http.Error(w, "missing user identity", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	client := newClient(userID, conn)
	ctx := r.Context()

	h.orch.Connect(client)
	defer func() {
		h.orch.Disconnect(client)
		client.close()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	go client.writePump(ctx)
	go client.pingLoop(ctx)

	for {
		var env gamedto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			obslog.L().Debug("ws_read_closed",
				zap.String("conn_id", client.ID()),
				zap.Error(err),
			)
			return
		}
		h.dispatch(ctx, client, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Client, env gamedto.Envelope) {
	var err error
	switch env.Type {
	case gamedto.ActionCreateGame:
		var req gamedto.CreateGame
		if err = decode(env.Payload, &req); err == nil {
			_, err = h.orch.Create(ctx, c, sessionClock(req))
		}
	case gamedto.ActionJoinGame:
		var req gamedto.JoinGame
		if err = decode(env.Payload, &req); err == nil {
			_, err = h.orch.Join(ctx, c, req.Token)
		}
	case gamedto.ActionJoinRoom:
		var req gamedto.RoomRef
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.JoinRoom(c, req.GameID)
		}
	case gamedto.ActionLeaveRoom:
		var req gamedto.RoomRef
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.LeaveRoom(c, req.GameID)
		}
	case gamedto.ActionMove:
		var req gamedto.MoveRequest
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.Move(c, req)
		}
	case gamedto.ActionResign:
		var req gamedto.RoomRef
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.Resign(c, req.GameID)
		}
	case gamedto.ActionOfferDraw:
		var req gamedto.RoomRef
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.OfferDraw(c, req.GameID)
		}
	case gamedto.ActionAcceptDraw:
		var req gamedto.RoomRef
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.AcceptDraw(c, req.GameID)
		}
	case gamedto.ActionAbort:
		var req gamedto.RoomRef
		if err = decode(env.Payload, &req); err == nil {
			err = h.orch.Abort(ctx, c, req.GameID)
		}
	default:
		c.Send(gamedto.EventError, gamedto.Error{
			Reason:  "bad_request",
			Message: h.cat.Message("error.bad_request"),
		})
		return
	}
	if err != nil {
		h.sendError(c, err)
	}
}

func (h *Handler) sendError(c *Client, err error) {
	reason := orchestrator.Reason(err)
	if errors.Is(err, errBadPayload) {
		reason = "bad_request"
	}
	c.Send(gamedto.EventError, gamedto.Error{
		Reason:  reason,
		Message: h.cat.Message("error." + reason),
	})
}

var errBadPayload = errors.New("malformed payload")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadPayload
	}
	return nil
}

func sessionClock(req gamedto.CreateGame) session.ClockConfig {
	return session.ClockConfig{
		InitialTimeSeconds: req.InitialTimeSeconds,
		IncrementSeconds:   req.IncrementSeconds,
	}
}
