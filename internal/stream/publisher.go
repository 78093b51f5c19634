package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/t173/skinvis/skin"
)

var logger = logrus.WithField("component", "stream")

// Publisher periodically snapshots a sensor and broadcasts the state to
// all clients of its hub.
type Publisher struct {
	hub    *Hub
	sensor *skin.Skin
	period time.Duration
	stop   chan struct{}
	done   chan struct{}
}

// NewPublisher builds a publisher broadcasting at the given period.
func NewPublisher(hub *Hub, sensor *skin.Skin, period time.Duration) *Publisher {
	return &Publisher{
		hub:    hub,
		sensor: sensor,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start runs the broadcast loop until Stop.
func (p *Publisher) Start() {
	go func() {
		defer close(p.done)
		tick := time.NewTicker(p.period)
		defer tick.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-tick.C:
				if p.hub.Count() == 0 {
					continue
				}
				p.hub.Broadcast(Message{Type: MsgState, Data: p.snapshot()})
			}
		}
	}()
}

// Stop halts the broadcast loop and waits for it to exit.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Publisher) snapshot() *Snapshot {
	lo := p.sensor.Layout()
	snap := &Snapshot{
		Time:        float64(time.Now().UnixNano()) / 1e9,
		Patches:     make([]PatchSnapshot, 0, lo.NumPatches()),
		Calibrating: p.sensor.Calibrating(),
		Tally:       p.sensor.Tally(),
	}
	for i := range lo.Patches {
		id := lo.Patches[i].PatchID
		cells, err := p.sensor.PatchState(id)
		if err != nil {
			continue
		}
		pr, err := p.sensor.PatchPressure(id)
		if err != nil {
			continue
		}
		snap.Patches = append(snap.Patches, PatchSnapshot{
			Patch:     id,
			Cells:     cells,
			Magnitude: pr.Magnitude,
			X:         pr.X,
			Y:         pr.Y,
		})
	}
	return snap
}

var upgrader = websocket.Upgrader{
	// Local, single-user tool: accept any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler returns an http.Handler that upgrades connections and
// registers them with the hub.  Inbound messages are discarded; the
// read loop exists to notice disconnects.
func (p *Publisher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
			return
		}
		c := p.hub.Add(conn)
		go func() {
			defer p.hub.Remove(c)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}
