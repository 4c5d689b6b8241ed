package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridscout.ai/internal/protocol"
)

// Client is the observer side of the stream: it subscribes, then delivers
// raw frames on Frames until the connection closes.
type Client struct {
	conn   *websocket.Conn
	frames chan []byte
	wmu    sync.Mutex
	errMu  sync.Mutex
	err    error
	nextID int
}

func Dial(ctx context.Context, url string, sub protocol.SubscribeMsg) (*Client, protocol.WelcomeMsg, error) {
	var welcome protocol.WelcomeMsg
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, welcome, err
	}
	sub.Type = protocol.TypeSubscribe
	if sub.ProtocolVersion == "" {
		sub.ProtocolVersion = protocol.Version
	}
	if err := writeJSON(conn, sub); err != nil {
		_ = conn.Close()
		return nil, welcome, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, welcome, err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		_ = conn.Close()
		return nil, welcome, err
	}
	if base.Type == protocol.TypeError {
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		_ = conn.Close()
		return nil, welcome, fmt.Errorf("subscribe rejected: %s: %s", e.Code, e.Message)
	}
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return nil, welcome, fmt.Errorf("expected WELCOME, got %s", base.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{conn: conn, frames: make(chan []byte, 256)}
	go c.readLoop()
	return c, welcome, nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			return
		}
		c.frames <- msg
	}
}

// Frames is closed when the connection ends; Err then reports why.
func (c *Client) Frames() <-chan []byte { return c.frames }

func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Command sends a COMMAND frame and returns its request id. The REPLY
// arrives on Frames.
func (c *Client) Command(text string, teach ...string) (string, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.nextID++
	id := fmt.Sprintf("c%d", c.nextID)
	msg := protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, ReqID: id, Text: text, Teach: teach}
	return id, writeJSON(c.conn, msg)
}

func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}
