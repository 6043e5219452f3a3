package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"wordfall-service/internal/app"
	"wordfall-service/internal/logging"

	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service     *app.GameService
	defaultBank string
	upgrader    websocket.Upgrader
}

func NewWSHandler(service *app.GameService, defaultBank string) *WSHandler {
	return &WSHandler{
		service:     service,
		defaultBank: defaultBank,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type keyPayload struct {
	Key string `json:"key"`
}

type pointerPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type selectPayload struct {
	RoundID string `json:"roundId"`
}

type clickPayload struct {
	RoundID string `json:"roundId"`
	Word    string `json:"word"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// ServeWS creates a session for the connection, streams its snapshots and
// events, and feeds player input back into it. Closing the socket ends the
// session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx).Named("transport.ws")

	bankID := r.URL.Query().Get("bankId")
	if bankID == "" {
		bankID = h.defaultBank
	}

	snap, err := h.service.CreateSession(ctx, bankID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := snap.ID
	defer func() {
		_ = h.service.End(ctx, sessionID)
	}()

	updates, cancel, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	logger = logger.With("session", sessionID)
	logger.Infow("player connected", "bank", bankID)

	send := make(chan outboundMessage[any], 64)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debugw("ws write error", "error", err)
				return
			}
		}
	}()

	forward := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				for _, ev := range update.Events {
					if !forward(outboundMessage[any]{Type: "event", Payload: ev}) {
						return
					}
				}
				if !forward(outboundMessage[any]{Type: "session", Payload: update.Snapshot}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(r, sessionID, inbound); err != nil {
			if !forward(errorMessage(err.Error())) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	logger.Infow("player disconnected")
}

var (
	errKeyPayload     = errors.New("invalid key payload")
	errPointerPayload = errors.New("invalid pointer payload")
	errSelectPayload  = errors.New("invalid select payload")
	errClickPayload   = errors.New("invalid click payload")
	errUnsupported    = errors.New("unsupported message type")
)

func (h *WSHandler) dispatch(r *http.Request, sessionID string, inbound inboundMessage) error {
	ctx := r.Context()
	switch inbound.Type {
	case "key":
		var p keyPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errKeyPayload
		}
		return h.service.PressKey(ctx, sessionID, p.Key)
	case "pointer":
		var p pointerPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errPointerPayload
		}
		return h.service.PointerMove(ctx, sessionID, p.X, p.Y)
	case "select":
		var p selectPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errSelectPayload
		}
		return h.service.SelectRound(ctx, sessionID, p.RoundID)
	case "click":
		var p clickPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return errClickPayload
		}
		return h.service.ClickChoice(ctx, sessionID, p.RoundID, p.Word)
	case "abort":
		return h.service.Abort(ctx, sessionID)
	}
	return errUnsupported
}
