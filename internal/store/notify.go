package store

import (
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

// NotifyChannel is the Postgres channel the insert triggers publish to.
const NotifyChannel = "halo_inserts"

// InsertEvent is the payload of a row-insert notification on documents or
// citations.
type InsertEvent struct {
	Table     string `json:"table"`
	ProjectID string `json:"project_id"`
}

// Listener turns Postgres LISTEN/NOTIFY into a channel of InsertEvents so
// replica sessions can resync out of band.
type Listener struct {
	pl     *pq.Listener
	events chan InsertEvent
	done   chan struct{}
	logger *log.Logger
}

// NewListener connects a dedicated notification connection and subscribes to
// the insert channel.
func NewListener(dsn string, logger *log.Logger) (*Listener, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[FEED] ", log.LstdFlags)
	}
	pl := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Printf("listener event %d: %v", ev, err)
		}
	})
	if err := pl.Listen(NotifyChannel); err != nil {
		pl.Close()
		return nil, err
	}
	l := &Listener{
		pl:     pl,
		events: make(chan InsertEvent, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l, nil
}

func (l *Listener) run() {
	defer close(l.events)
	for {
		select {
		case <-l.done:
			return
		case n, ok := <-l.pl.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnect marker; replicas resync on their poll tick.
				continue
			}
			var ev InsertEvent
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				l.logger.Printf("bad notify payload %q: %v", n.Extra, err)
				continue
			}
			select {
			case l.events <- ev:
			default:
				l.logger.Printf("event channel full, dropping %s insert", ev.Table)
			}
		case <-time.After(90 * time.Second):
			go l.pl.Ping()
		}
	}
}

// Events is the stream of insert notifications. Closed by Close.
func (l *Listener) Events() <-chan InsertEvent { return l.events }

func (l *Listener) Close() error {
	close(l.done)
	return l.pl.Close()
}
