package native

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
)

// Helper control messages can carry a full probe format list; lines are kept
// well under this in practice.
const maxLineBytes = 1 << 20

// channel is a live duplex connection to the helper. Inbound lines are decoded
// and handed to onMessage; read failure of any kind ends the channel and fires
// onDisconnect exactly once.
type channel struct {
	conn net.Conn

	writeMu sync.Mutex
	enc     *json.Encoder

	closeOnce sync.Once
}

func newChannel(conn net.Conn, onMessage func(*Message), onDisconnect func(error)) *channel {
	ch := &channel{
		conn: conn,
		enc:  json.NewEncoder(conn),
	}

	go ch.readLoop(onMessage, onDisconnect)

	return ch
}

// Send writes one request as a JSON line. Safe for concurrent use.
func (ch *channel) Send(req Request) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return ch.enc.Encode(req)
}

// Close tears down the underlying connection. The read loop notices and
// reports the disconnect.
func (ch *channel) Close() {
	ch.closeOnce.Do(func() {
		ch.conn.Close()
	})
}

func (ch *channel) readLoop(onMessage func(*Message), onDisconnect func(error)) {
	scanner := bufio.NewScanner(ch.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// Malformed lines are ignored, matching the helper bridge.
			continue
		}

		onMessage(&msg)
	}

	ch.Close()
	onDisconnect(scanner.Err())
}
