package broadcast

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/contestops/contestfeed/internal/feed"
	"github.com/contestops/contestfeed/internal/model"
)

// Dispatcher funnels model change callbacks into the engine. One listener
// covers every entity kind; the change carries its own type tag.
type Dispatcher struct {
	engine *Engine
	logger *zap.Logger

	// onFinalized fires once the contest state reports finalization,
	// after all sessions have been closed. Optional.
	onFinalized func()
}

// NewDispatcher builds the listener bridge. onFinalized may be nil.
func NewDispatcher(engine *Engine, logger *zap.Logger, onFinalized func()) *Dispatcher {
	return &Dispatcher{
		engine:      engine,
		logger:      logger,
		onFinalized: onFinalized,
	}
}

// Listen implements model.Listener. It serializes the changed entity and
// hands the draft to the engine; the event's position in the sequence is
// assigned there, not here, so listener callbacks need no ordering
// guarantees among themselves.
func (d *Dispatcher) Listen(ch model.Change) {
	data, err := json.Marshal(ch.Entity)
	if err != nil {
		d.logger.Error("unserializable model change",
			zap.String("kind", string(ch.Kind)),
			zap.Error(err),
		)
		return
	}

	_, published := d.engine.Publish(feed.Draft{Type: ch.Kind, Op: ch.Op, Data: data})
	if !published {
		return
	}

	if ch.Kind == feed.TypeState {
		if st, ok := ch.Entity.(model.State); ok && st.Finalized != nil {
			d.logger.Info("contest finalized, closing feed sessions")
			d.engine.CloseAll()
			if d.onFinalized != nil {
				d.onFinalized()
			}
		}
	}
}
