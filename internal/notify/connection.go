package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// connection одно живое websocket-соединение с пишущей горутиной
type connection struct {
	id      string
	ws      *websocket.Conn
	out     chan []byte
	closeMu sync.Once
	done    chan struct{}
}

func newConnection(id string, ws *websocket.Conn) *connection {
	return &connection{
		id:   id,
		ws:   ws,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// send ставит сообщение в очередь отправки; false если буфер переполнен
// или соединение закрыто. Никогда не блокируется.
func (c *connection) send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	case c.out <- payload:
		return true
	default:
		return false
	}
}

func (c *connection) close() {
	c.closeMu.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump пишет исходящие сообщения и периодически пингует клиента
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump вычитывает и отбрасывает входящие сообщения, следит за pong.
// Канал односторонний: клиенты ничего не присылают, кроме управляющих фреймов.
func (c *connection) readPump() {
	defer c.close()

	c.ws.SetReadLimit(512)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
