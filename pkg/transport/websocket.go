// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WireFrame is the CBOR encoding of a frame on the gateway link: [id, data].
type WireFrame struct {
	_    struct{} `cbor:",toarray"`
	ID   uint32
	Data []byte
}

// EncodeWireFrame marshals a frame for the gateway.
func EncodeWireFrame(id uint32, data []byte) ([]byte, error) {
	return cbor.Marshal(WireFrame{ID: id, Data: data})
}

// DecodeWireFrame unmarshals a gateway message.
func DecodeWireFrame(msg []byte) (Frame, error) {
	if len(msg) == 0 {
		return Frame{}, fmt.Errorf("empty CBOR payload")
	}
	var w WireFrame
	if err := cbor.Unmarshal(msg, &w); err != nil {
		return Frame{}, fmt.Errorf("failed to decode CBOR frame: %w", err)
	}
	if err := checkFrame(w.ID, w.Data); err != nil {
		return Frame{}, err
	}
	return Frame{ID: w.ID, Data: w.Data}, nil
}

// WebSocket reaches a remote CAN gateway. Each channel is its own connection
// to URL with a channel query parameter.
type WebSocket struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
	Logger        *zap.SugaredLogger
}

func (w *WebSocket) Describe() string {
	return fmt.Sprintf("WebSocket: %s", w.URL)
}

// Open dials the gateway for one channel with HTTP Basic auth.
func (w *WebSocket) Open(channel string) (Channel, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, errors.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	q := u.Query()
	q.Set("channel", channel)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: w.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if w.Username != "" && w.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(w.Username + ":" + w.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "WebSocket connection failed (HTTP %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "WebSocket connection failed")
	}

	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &wsChannel{name: channel, conn: conn, logger: logger}
	c.rx = newRxQueue(c.read)
	logger.Infow("gateway channel open", "channel", channel, "url", w.URL)
	return c, nil
}

type wsChannel struct {
	name   string
	conn   *websocket.Conn
	rx     *rxQueue
	logger *zap.SugaredLogger

	closeOnce sync.Once
	closeErr  error
}

func (c *wsChannel) Name() string { return c.name }

func (c *wsChannel) read() (Frame, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		// Only binary messages carry frames.
		if messageType != websocket.BinaryMessage {
			continue
		}
		f, err := DecodeWireFrame(data)
		if err != nil {
			c.logger.Debugw("dropping gateway message", "channel", c.name, "error", err)
			continue
		}
		f.Time = time.Now()
		return f, nil
	}
}

func (c *wsChannel) Send(id uint32, data []byte) error {
	if c.rx.stopped() {
		return c.rx.closedErr()
	}
	if err := checkFrame(id, data); err != nil {
		return err
	}
	msg, err := EncodeWireFrame(id, data)
	if err != nil {
		return errors.Wrap(err, "encode frame")
	}
	c.rx.drain()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return errors.Wrapf(err, "%s: send 0x%03X", c.name, id)
	}
	return nil
}

func (c *wsChannel) Recv(timeout time.Duration) (Frame, error) {
	return c.rx.recv(timeout)
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
