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

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a WebSocket socket
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// WebSocketSocket exchanges envelopes as binary messages with a bridge
// that relays them between its clients.
type WebSocketSocket struct {
	*packetSocket
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialWebSocket connects to a bridge, using HTTP Basic auth when a username
// and password are given
func DialWebSocket(ctx context.Context, cfg WebSocketConfig, opts SocketOptions) (*WebSocketSocket, error) {
	conn, err := DialWebSocketConn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &WebSocketSocket{
		packetSocket: newPacketSocket("websocket", opts),
		conn:         conn,
	}
	go s.readLoop()
	s.logger.Info("websocket socket connected", "url", cfg.URL)
	return s, nil
}

// DialWebSocketConn opens the underlying WebSocket connection
func DialWebSocketConn(ctx context.Context, cfg WebSocketConfig) (*websocket.Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return conn, nil
}

// SendTo writes data addressed to dest as one binary message
func (s *WebSocketSocket) SendTo(dest uint16, data []byte) error {
	payload, err := s.seal(dest, data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Close closes the connection
func (s *WebSocketSocket) Close() error {
	if !s.markClosed() {
		return nil
	}
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *WebSocketSocket) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.markClosed() {
				s.logger.Warn("websocket closed", "err", err)
				_ = s.conn.Close()
			}
			return
		}
		// Only binary messages carry envelopes
		if messageType != websocket.BinaryMessage {
			continue
		}
		s.deliver(data)
	}
}
