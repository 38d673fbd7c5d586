package server

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/Eppu/micro-poll/broadcast"
	"github.com/Eppu/micro-poll/poll"
	"github.com/Eppu/micro-poll/utils"

	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wsRequest struct {
	Action string `json:"action"`
	PollID string `json:"poll_id"`
}

type wsError struct {
	Error string `json:"error"`
}

func registerWS(app *fiber.App, svc *poll.Service, hub *broadcast.Hub) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		// IsWebSocketUpgrade returns true if the client
		// requested upgrade to the WebSocket protocol.
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(426)
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		closeChan := make(chan struct{})
		mtx := &sync.Mutex{}
		joined := map[string]chan broadcast.Event{}

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				log.Errorf("json, err=%v", err)
				return nil
			}
			mtx.Lock()
			defer mtx.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		go func() {
			for {
				select {
				case <-time.After(60 * time.Second):
					mtx.Lock()
					if err := c.WriteMessage(websocket.TextMessage, utils.S2B("HEARTBEAT")); err != nil {
						mtx.Unlock()
						return
					}
					mtx.Unlock()
				case <-closeChan:
					return
				}
			}
		}()

		defer func() {
			close(closeChan)
			for id, ch := range joined {
				if err := hub.Leave(id, ch); err != nil {
					log.Errorf("broadcast, err=%v", err)
				}
			}
		}()

		for {
			mt, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			if mt != websocket.TextMessage {
				continue
			}

			req := &wsRequest{}
			if err = json.Unmarshal(msg, req); err != nil {
				writeJSON(wsError{Error: "invalid request"})
				continue
			}

			handleAction(svc, hub, joined, req, writeJSON)
		}
	}))
}

func handleAction(svc *poll.Service, hub *broadcast.Hub, joined map[string]chan broadcast.Event, req *wsRequest, writeJSON func(interface{}) error) {
	switch req.Action {
	case "join_poll":
		if _, ok := joined[req.PollID]; ok {
			return
		}
		// Reject ids that point nowhere before holding a subscription
		// open for them.
		if _, err := svc.GetPoll(context.Background(), req.PollID); err != nil {
			writeJSON(wsError{Error: "unknown poll"})
			return
		}

		ch, err := hub.Join(req.PollID)
		if err != nil {
			log.Errorf("broadcast, err=%v", err)
			writeJSON(wsError{Error: "internal server error"})
			return
		}
		joined[req.PollID] = ch
		log.Debugf("client joined poll %s", req.PollID)

		go func(ch chan broadcast.Event) {
			for event := range ch {
				if err := writeJSON(event); err != nil {
					return
				}
			}
		}(ch)
	case "leave_poll":
		ch, ok := joined[req.PollID]
		if !ok {
			return
		}
		delete(joined, req.PollID)
		if err := hub.Leave(req.PollID, ch); err != nil {
			log.Errorf("broadcast, err=%v", err)
		}
	default:
		writeJSON(wsError{Error: "unknown action"})
	}
}
