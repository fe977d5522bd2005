package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/oshiri-client/internal/logging"
	"github.com/DoyleJ11/oshiri-client/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Handler upgrades /ws. Every socket is told its token with NEW_CLIENT; a
// socket that brings back a known token is reseated without a JOIN_GAME.
func Handler(h *Hub, logger *zap.Logger) http.HandlerFunc {
	logger = logging.Or(logger).Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = uuid.NewString()
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// dev server: any origin
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Warn("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := logger.With(zap.String("token", token))

		// out is fed by the room, local by this handler. Only the room closes out.
		out := make(chan types.Envelope, 32)
		local := make(chan types.Envelope, 8)

		if err := writeEnvelope(r.Context(), conn, types.TagNewClient, types.NewClient{Token: token}); err != nil {
			log.Warn("greeting failed", zap.Error(err))
			return
		}

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				var env types.Envelope
				select {
				case e, ok := <-out:
					if !ok {
						conn.Close(websocket.StatusPolicyViolation, "too slow")
						return
					}
					env = e
				case env = <-local:
				case <-writeCtx.Done():
					return
				}
				payload, err := json.Marshal(env)
				if err != nil {
					log.Error("encode", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
		}()

		say := func(tag types.Tag, payload any) {
			env, err := types.NewEnvelope(tag, payload)
			if err != nil {
				return
			}
			select {
			case local <- env:
			default:
				log.Warn("local frame dropped", zap.String("type", string(tag)))
			}
		}

		var room *Room
		if rm := h.session(token); rm != nil {
			reply := make(chan bool, 1)
			if rm.Post(Reattach{Token: token, Outbox: out, Reply: reply}) && await(reply, rm) {
				room = rm
				log.Info("socket resumed", zap.String("room", rm.ID()))
			}
		}
		defer func() {
			if room != nil {
				room.Post(Detach{Token: token, Outbox: out})
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read ended", zap.Error(err))
				}
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Warn("bad frame", zap.Error(err))
				continue
			}

			if env.Type == types.TagJoinGame {
				var join types.JoinGame
				if err := decodeData(env, &join); err != nil {
					log.Warn("bad join", zap.Error(err))
					continue
				}
				rm := h.Room(join.RoomID)
				if rm == nil {
					say(types.TagRoomNotFound, nil)
					continue
				}
				if room != nil && room != rm {
					room.Post(Detach{Token: token, Outbox: out})
					room = nil
				}
				reply := make(chan error, 1)
				if !rm.Post(Join{Token: token, Username: join.Username, Outbox: out, Reply: reply}) {
					say(types.TagRoomNotFound, nil)
					continue
				}
				select {
				case err = <-reply:
				case <-rm.Done():
					err = context.Canceled
				}
				if err != nil {
					log.Info("join refused", zap.String("room", rm.ID()), zap.Error(err))
					continue
				}
				room = rm
				h.bind(token, rm.ID())
				continue
			}

			if room == nil {
				log.Debug("frame before join", zap.String("type", string(env.Type)))
				continue
			}
			room.Post(FromClient{Token: token, Env: env})
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, tag types.Tag, payload any) error {
	env, err := types.NewEnvelope(tag, payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}

func await(reply chan bool, rm *Room) bool {
	select {
	case ok := <-reply:
		return ok
	case <-rm.Done():
		return false
	}
}

func decodeData(env types.Envelope, v any) error {
	return json.Unmarshal(env.Data, v)
}
