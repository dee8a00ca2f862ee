// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/yinbiaozhong/lk/pkg/moot"
)

// Connection is a moot.Transport that can also be closed once the command is
// done with the device.
type Connection interface {
	moot.Transport
	io.Closer
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// SerialTransport drives the bootloader over a serial port.
type SerialTransport struct {
	port serial.Port
}

// Write sends p to the device-bound endpoint. The serial layer has no write
// timeout; writes block until the OS buffer accepts the bytes.
func (s *SerialTransport) Write(p []byte, timeout time.Duration) (int, error) {
	return s.port.Write(p)
}

// Read returns exactly n bytes from the host-bound endpoint. A zero timeout
// blocks indefinitely; otherwise the timeout bounds each wait for more bytes,
// and a silent device fails the read rather than returning a short buffer.
func (s *SerialTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	readTimeout := serial.NoTimeout
	if timeout > 0 {
		readTimeout = timeout
	}
	if err := s.port.SetReadTimeout(readTimeout); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	off := 0
	for off < n {
		k, err := s.port.Read(buf[off:])
		if err != nil {
			return nil, err
		}
		if k == 0 {
			// go.bug.st/serial signals an expired read timeout as (0, nil)
			return nil, fmt.Errorf("read timed out after %v (%d of %d bytes)", timeout, off, n)
		}
		off += k
	}
	return buf, nil
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

// WebSocketTransport drives the bootloader through a device bridge that
// forwards endpoint bytes as binary WebSocket messages.
type WebSocketTransport struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
}

func (w *WebSocketTransport) Write(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketTransport) Read(n int, timeout time.Duration) ([]byte, error) {
	if w.closed {
		return nil, ErrConnectionClosed
	}
	if n == 0 {
		return nil, nil
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		// Drain buffered bytes from the previous message first
		if w.bufOffset < len(w.buf) {
			take := w.buf[w.bufOffset:]
			if len(take) > n-len(out) {
				take = take[:n-len(out)]
			}
			out = append(out, take...)
			w.bufOffset += len(take)
			continue
		}

		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Mark connection as closed to prevent further read attempts
			w.closed = true
			return nil, err
		}

		// Only binary messages carry bootloader bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
	}

	return out, nil
}

func (w *WebSocketTransport) Close() error {
	return w.conn.Close()
}

// OpenSerialTransport opens a serial port connection to the bootloader
func OpenSerialTransport(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	return &SerialTransport{port: port}, nil
}

// OpenWebSocketTransport opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketTransport(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return &WebSocketTransport{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("LKBOOT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket transport based on flags
func OpenConnection() (Connection, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketTransport(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := OpenSerialTransport(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// newDispatcher opens the configured connection and wraps it in a dispatcher.
// Callers must Close the returned Connection when done.
func newDispatcher(extra ...moot.Option) (*moot.Dispatcher, Connection, string, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, nil, "", err
	}

	opts := []moot.Option{
		moot.WithDataTimeout(dataTimeout),
		moot.WithChunkSize(chunkSize),
		moot.WithTrace(traceSink),
	}
	opts = append(opts, extra...)

	return moot.NewDispatcher(conn, opts...), conn, connInfo, nil
}
