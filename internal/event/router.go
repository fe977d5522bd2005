package event

import (
	"go.uber.org/zap"
)

// Router decodes raw frames and dispatches them to a Handler. It is not
// safe for concurrent use; frames must be routed one at a time in arrival
// order from the goroutine that owns the handler's state.
type Router struct {
	h      Handler
	logger *zap.Logger
}

func NewRouter(h Handler, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{h: h, logger: logger}
}

// Route handles one frame. Undecodable frames are logged and dropped and
// never reach the handler.
func (r *Router) Route(raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		r.logger.Warn("dropping inbound frame", zap.Error(err), zap.Int("bytes", len(raw)))
		return err
	}
	r.logger.Debug("inbound event", zap.String("type", string(ev.Tag())))
	Dispatch(ev, r.h)
	return nil
}
