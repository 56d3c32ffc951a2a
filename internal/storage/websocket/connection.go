package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/OCAP2/racetrack/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

// ClientIDHeader carries the backend's client id on every dial.
const ClientIDHeader = "X-Racetrack-Client"

const (
	sendChSize   = 10_000
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	ackTimeout   = 10 * time.Second
)

// outgoing is one queued frame. State frames are also kept in the replay
// log; samples are dropped when the observer link falls behind.
type outgoing struct {
	data  []byte
	state bool
}

// connection is the observer link: one writer goroutine, one reader
// routing acks, and a replay log that rebuilds the race on the server
// after a reconnect.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	stop   chan struct{} // closed when conn is replaced
	sendCh chan outgoing
	done   chan struct{}
	closed bool

	wsURL    string
	secret   string
	clientID string

	// replay holds start_race followed by every roster, checkpoint and
	// finish frame of the current race, in send order.
	replay [][]byte

	// waiters maps a message type to the callers blocked on its ack.
	waiters map[string][]chan struct{}

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan outgoing, sendChSize),
		done:    make(chan struct{}),
		waiters: make(map[string][]chan struct{}),
		logger:  logger,
	}
}

func (c *connection) dial(rawURL, secret, clientID string) error {
	c.wsURL = rawURL
	c.secret = secret
	c.clientID = clientID

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.clientID != "" {
		header.Set(ClientIDHeader, c.clientID)
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach installs conn and starts its read and write loops.
func (c *connection) attach(conn *ws.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stop := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.stop = stop
	c.mu.Unlock()

	go c.writeLoop(conn, stop)
	go c.readLoop(conn)
}

func (c *connection) write(conn *ws.Conn, msgType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(msgType, data)
}

func (c *connection) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := c.write(conn, ws.PingMessage, nil); err != nil {
				c.logger.Warn("WebSocket ping failed", "error", err)
				go c.reconnect(conn)
				return
			}
		case msg := <-c.sendCh:
			if err := c.write(conn, ws.TextMessage, msg.data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		c.release(ack.For)
	}
}

// release wakes the oldest caller waiting for an ack of msgType.
func (c *connection) release(msgType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.waiters[msgType]
	if len(queue) == 0 {
		c.logger.Debug("Unexpected ack", "for", msgType)
		return
	}
	close(queue[0])
	c.waiters[msgType] = queue[1:]
}

// reconnect replaces a failed conn. Both loops of a conn may fail; only
// the first call for that conn does the work.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.stop)
	c.mu.Unlock()
	_ = failed.Close()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if err := c.replayTo(conn); err != nil {
			c.logger.Warn("Failed to replay race state after reconnect", "error", err)
			_ = conn.Close()
			continue
		}

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		c.attach(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// replayTo writes the replay log to a fresh conn before it goes live.
// Queued frames are discarded: state frames are already in the log and
// stale samples are not worth sending.
func (c *connection) replayTo(conn *ws.Conn) error {
	c.mu.Lock()
	frames := make([][]byte, len(c.replay))
	copy(frames, c.replay)
	dropped := 0
drain:
	for {
		select {
		case <-c.sendCh:
			dropped++
		default:
			break drain
		}
	}
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Debug("Discarded queued frames before replay", "count", dropped)
	}

	for _, data := range frames {
		if err := c.write(conn, ws.TextMessage, data); err != nil {
			return err
		}
	}
	if len(frames) > 0 {
		c.logger.Debug("Replayed race state", "frames", len(frames))
	}
	return nil
}

// beginReplay starts an empty replay log; the next state frame is
// expected to be start_race.
func (c *connection) beginReplay() {
	c.mu.Lock()
	c.replay = [][]byte{}
	c.mu.Unlock()
}

// clearReplay stops recording state frames until the next race.
func (c *connection) clearReplay() {
	c.mu.Lock()
	c.replay = nil
	c.mu.Unlock()
}

// sendState queues a frame that observers must not miss. It is kept for
// replay even when the queue is full.
func (c *connection) sendState(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replay != nil {
		c.replay = append(c.replay, data)
	}
	c.enqueue(outgoing{data: data, state: true})
}

// sendSample queues a progress frame; a newer sample supersedes it, so it
// is dropped when the link falls behind.
func (c *connection) sendSample(data []byte) {
	c.enqueue(outgoing{data: data})
}

func (c *connection) enqueue(msg outgoing) {
	select {
	case c.sendCh <- msg:
	default:
		if msg.state {
			c.logger.Warn("WebSocket send queue full, state frame left for replay")
		} else {
			c.logger.Debug("WebSocket send queue full, dropping progress sample")
		}
	}
}

// sendAndWait queues a state frame and blocks until the server acks
// msgType or timeout expires.
func (c *connection) sendAndWait(data []byte, msgType string, timeout time.Duration) error {
	wait := make(chan struct{})
	c.mu.Lock()
	c.waiters[msgType] = append(c.waiters[msgType], wait)
	c.mu.Unlock()

	c.sendState(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wait:
		return nil
	case <-timer.C:
		c.dropWaiter(msgType, wait)
		return fmt.Errorf("timeout waiting for ack of %q", msgType)
	case <-c.done:
		return fmt.Errorf("connection closed while waiting for ack of %q", msgType)
	}
}

func (c *connection) dropWaiter(msgType string, wait chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.waiters[msgType]
	for i, w := range queue {
		if w == wait {
			c.waiters[msgType] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

// close sends a close frame and stops both loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}
