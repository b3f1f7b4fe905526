package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"occupancy/internal/logger"
	"occupancy/internal/models"
)

// ErrBroadcastFull means viewers are not keeping up and the message was dropped.
var ErrBroadcastFull = errors.New("websocket: broadcast queue full")

const defaultWriteWait = 2 * time.Second

type message struct {
	camera string
	data   []byte
}

type subscription struct {
	conn   *websocket.Conn
	camera string
}

// HubService fans metrics snapshots out to connected viewers. A viewer may
// subscribe to a single camera; an empty camera receives everything.
type HubService struct {
	clients    map[*websocket.Conn]string
	broadcast  chan message
	register   chan subscription
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	writeWait  time.Duration
	logger     *logger.Logger
}

func NewHubService(log *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]string),
		broadcast:  make(chan message, 16),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		writeWait:  defaultWriteWait,
		logger:     log.WithField("component", "hub"),
	}
}

// Run serves registrations and broadcasts until ctx ends. It must only be
// started once.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case sub := <-h.register:
			h.mutex.Lock()
			h.clients[sub.conn] = sub.camera
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

// send writes msg to every matching viewer. A viewer that cannot take the
// write within writeWait is dropped.
func (h *HubService) send(msg message) {
	h.mutex.RLock()
	targets := make([]*websocket.Conn, 0, len(h.clients))
	for client, camera := range h.clients {
		if camera == "" || camera == msg.camera {
			targets = append(targets, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		client.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg.data); err != nil {
			h.logger.Warning("Dropping viewer after failed write: %v", err)
			h.mutex.Lock()
			delete(h.clients, client)
			h.mutex.Unlock()
			client.Close()
		}
	}
}

func (h *HubService) Register(client *websocket.Conn, camera string) {
	select {
	case h.register <- subscription{conn: client, camera: camera}:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// Broadcast queues a message for viewers of camera without waiting. When
// the queue is full the message is dropped with ErrBroadcastFull.
func (h *HubService) Broadcast(data []byte, camera string) error {
	select {
	case h.broadcast <- message{camera: camera, data: data}:
		return nil
	case <-h.done:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// Persist broadcasts the record as JSON; viewers are just another sink.
func (h *HubService) Persist(ctx context.Context, rec models.MetricsRecord) error {
	if h.GetClientCount() == 0 {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	return h.Broadcast(data, rec.CameraID)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
