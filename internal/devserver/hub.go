package devserver

import (
	"context"
	"crypto/rand"
	"math/big"

	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom opens a room under ID. Reply gets nil when the id is taken.
type CreateRoom struct {
	ID    string
	Reply chan *Room
}

type GetRoom struct {
	ID    string
	Reply chan *Room // nil when unknown
}

type RemoveRoom struct {
	ID string
}

// BindSession remembers which room a token sits in, for reconnects.
type BindSession struct {
	Token  string
	RoomID string
}

type FindSession struct {
	Token string
	Reply chan *Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (BindSession) isHubMsg() {}
func (FindSession) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub is the registry of rooms.
type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*Room
	sessions map[string]string
	opts     Options
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*Room),
		sessions: make(map[string]string),
		logger:   opts.Logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	opts.OnEmpty = func(id string) { go h.remove(id) }
	h.opts = opts
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.rooms[msg.ID] != nil {
					msg.Reply <- nil
					break
				}
				rm := NewRoom(h.ctx, msg.ID, h.opts)
				h.rooms[msg.ID] = rm
				h.logger.Info("room created", zap.String("room", msg.ID))
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case RemoveRoom:
				if rm := h.rooms[msg.ID]; rm != nil {
					rm.Post(Shutdown{})
					delete(h.rooms, msg.ID)
					h.logger.Info("room removed", zap.String("room", msg.ID))
				}
				for tok, id := range h.sessions {
					if id == msg.ID {
						delete(h.sessions, tok)
					}
				}

			case BindSession:
				h.sessions[msg.Token] = msg.RoomID

			case FindSession:
				msg.Reply <- h.rooms[h.sessions[msg.Token]]

			case ShutdownHub:
				for _, rm := range h.rooms {
					rm.Post(Shutdown{})
				}
				clear(h.rooms)
				clear(h.sessions)
				h.cancel()
				return
			}
		}
	}
}

// ask sends m and waits for its reply, giving up once the hub is gone.
func (h *Hub) ask(m HubMsg, reply chan *Room) *Room {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-h.ctx.Done():
		return nil
	}
}

// Room looks a room up by id.
func (h *Hub) Room(id string) *Room {
	reply := make(chan *Room, 1)
	return h.ask(GetRoom{ID: id, Reply: reply}, reply)
}

// Create opens a room with a fresh id, regenerating on collision.
func (h *Hub) Create() (*Room, error) {
	for {
		id, err := GenerateID()
		if err != nil {
			return nil, err
		}
		reply := make(chan *Room, 1)
		if rm := h.ask(CreateRoom{ID: id, Reply: reply}, reply); rm != nil {
			return rm, nil
		}
		if h.ctx.Err() != nil {
			return nil, h.ctx.Err()
		}
		h.logger.Debug("room id collision, regenerating", zap.String("room", id))
	}
}

func (h *Hub) bind(token, roomID string) {
	select {
	case h.inbox <- BindSession{Token: token, RoomID: roomID}:
	case <-h.ctx.Done():
	}
}

// remove drops an abandoned room.
func (h *Hub) remove(id string) {
	select {
	case h.inbox <- RemoveRoom{ID: id}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) session(token string) *Room {
	reply := make(chan *Room, 1)
	return h.ask(FindSession{Token: token, Reply: reply}, reply)
}

// Shutdown stops every room and the hub.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

// GenerateID returns a six character room id.
func GenerateID() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	id := make([]byte, 6)
	for i := range id {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		id[i] = charset[num.Int64()]
	}
	return string(id), nil
}
