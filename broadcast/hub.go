package broadcast

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is an encoded event in flight on a transport channel.
type Message struct {
	Channel string
	Payload []byte
}

// Transport carries encoded events between publishers and hubs. The redis
// implementation fans events across processes; the loopback implementation
// keeps everything in process.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
	Messages() <-chan Message
}

// Hub maintains the local subscription registry for poll events and fans
// incoming transport messages out to every subscriber of the poll's channel.
// Delivery is best effort; a subscriber that is gone simply misses events.
type Hub struct {
	mtx       *sync.Mutex
	subs      map[string][]chan Event
	transport Transport
	done      chan struct{}
}

func NewHub(transport Transport) *Hub {
	h := &Hub{
		mtx:       &sync.Mutex{},
		subs:      map[string][]chan Event{},
		transport: transport,
		done:      make(chan struct{}),
	}

	go func() {
		ch := h.transport.Messages()
		for {
			var msg Message
			select {
			case msg = <-ch:
			case <-h.done:
				return
			}
			event := Event{}
			err := json.Unmarshal(msg.Payload, &event)
			if err != nil {
				log.Errorf("broadcast, err=%v", err)
				continue
			}
			wg := sync.WaitGroup{}
			h.mtx.Lock()
			if v, ok := h.subs[msg.Channel]; ok {
				wg.Add(len(v))
				for _, c := range v {
					go func(c chan Event) {
						defer wg.Done()
						defer recover()
						c <- event
					}(c)
				}
			}
			wg.Wait()
			h.mtx.Unlock()
		}
	}()

	return h
}

func channelName(pollID string) string {
	return fmt.Sprintf("events:poll:%s", pollID)
}

// Join subscribes to a poll's events. The first local subscriber of a poll
// opens the transport subscription.
func (h *Hub) Join(pollID string) (chan Event, error) {
	ch := make(chan Event, 16)
	event := channelName(pollID)

	h.mtx.Lock()
	defer h.mtx.Unlock()
	if v, ok := h.subs[event]; ok {
		h.subs[event] = append(v, ch)
	} else {
		h.subs[event] = []chan Event{ch}
		if err := h.transport.Subscribe(context.Background(), event); err != nil {
			delete(h.subs, event)
			return nil, err
		}
	}
	return ch, nil
}

func filterSlice(s []chan Event, r chan Event) []chan Event {
	for i, v := range s {
		if v == r {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Leave drops a subscription; the last local subscriber of a poll closes the
// transport subscription.
func (h *Hub) Leave(pollID string, ch chan Event) error {
	event := channelName(pollID)

	h.mtx.Lock()
	defer h.mtx.Unlock()
	new := filterSlice(h.subs[event], ch)
	close(ch)
	if len(new) == 0 {
		delete(h.subs, event)
		return h.transport.Unsubscribe(context.Background(), event)
	}
	h.subs[event] = new
	return nil
}

// Publish sends an event to every subscriber of a poll, local and remote.
func (h *Hub) Publish(ctx context.Context, pollID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.transport.Publish(ctx, channelName(pollID), payload)
}

func (h *Hub) Close() {
	close(h.done)
}
