package inspect

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// Event types sent on a watch feed.
const (
	EventSnapshot = "snapshot"
	EventChange   = "change"
)

// Event is one message of a watch feed. A snapshot carries every value; a
// change carries the changed keys and their current values.
type Event struct {
	Type   string         `json:"type"`
	Store  string         `json:"store"`
	Keys   []string       `json:"keys,omitempty"`
	Values map[string]any `json:"values"`
}

func changeEvent(s *store.Store, c notify.Change) Event {
	values := make(map[string]any, len(c.Keys))
	for _, k := range c.Keys {
		values[k] = printable(s.Get(k))
	}
	return Event{Type: EventChange, Store: s.ID(), Keys: c.Keys, Values: values}
}

// handleWatch streams a snapshot followed by every change of the store until
// the client disconnects or the store is disposed.
func (i *Inspector) handleWatch(w http.ResponseWriter, r *http.Request) {
	s, ok := i.Lookup(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.metrics.wsError("upgrade")
		i.logger.Error("inspect: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	i.metrics.watchOpened()
	defer i.metrics.watchClosed()

	out := make(chan Event, max(i.feedBuffer, 1))
	done := make(chan struct{})

	listener := notify.NewListener(func(c notify.Change) {
		select {
		case out <- changeEvent(s, c):
		case <-done:
		default:
			i.metrics.drop()
			i.logger.Warn("inspect: watch feed full, dropping change", "store", s.ID(), "keys", c.Keys)
		}
	})
	s.AddChangeListener(listener)
	defer s.RemoveChangeListener(listener)

	// The snapshot is written before the loop starts so it always precedes
	// the changes queued on out.
	conn.SetWriteDeadline(time.Now().Add(i.writeTimeout))
	snapshot := Event{Type: EventSnapshot, Store: s.ID(), Values: printableMap(s.Values())}
	if err := conn.WriteJSON(snapshot); err != nil {
		i.metrics.wsError("write")
		i.logger.Debug("inspect: watch write failed", "store", s.ID(), "error", err)
		return
	}

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
					websocket.CloseNormalClosure) {
					i.metrics.wsError("read")
					i.logger.Error("inspect: watch read error", "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case ev := <-out:
			conn.SetWriteDeadline(time.Now().Add(i.writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				i.metrics.wsError("write")
				i.logger.Debug("inspect: watch write failed", "store", s.ID(), "error", err)
				return
			}
		case <-s.Context().Done():
			conn.SetWriteDeadline(time.Now().Add(i.writeTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "store disposed"))
			return
		case <-done:
			return
		}
	}
}
