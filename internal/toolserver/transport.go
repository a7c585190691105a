package toolserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// maxMessageSize bounds a single request line or frame.
const maxMessageSize = 4 << 20

// ServeStdio reads newline-delimited requests from r and writes one response
// line per request to w until r is exhausted or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			msg := append([]byte(nil), line...)
			select {
			case lines <- msg:
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					if err != nil {
						return fmt.Errorf("failed to read request: %w", err)
					}
				default:
				}
				return nil
			}
			resp := s.Handle(ctx, line)
			if resp == nil {
				continue
			}
			if _, err := w.Write(append(resp, '\n')); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
	}
}

// WebSocketHandler serves the tool protocol on a WebSocket: each text frame
// is one request and responses are sent back on the same connection.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			s.config.Logger.Printf("WebSocket upgrade failed: %v", err)
			return
		}
		conn.SetReadLimit(maxMessageSize)
		defer conn.Close(websocket.StatusNormalClosure, "")

		s.config.Logger.Printf("Tool client connected from %s", r.RemoteAddr)

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					s.config.Logger.Printf("Tool client read error: %v", err)
				}
				return
			}

			resp := s.Handle(ctx, data)
			if resp == nil {
				continue
			}

			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(wctx, websocket.MessageText, resp)
			cancel()
			if err != nil {
				s.config.Logger.Printf("Failed to send response: %v", err)
				return
			}
		}
	})
}

// ListenAndServe serves the WebSocket transport at addr (path /rpc) until
// ctx is cancelled. ready, if non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/rpc", s.WebSocketHandler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	s.config.Logger.Printf("Tool server listening on ws://%s/rpc", ln.Addr())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
