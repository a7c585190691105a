// Package toolserver exposes the sync engine as JSON-RPC 2.0 tools so an
// assistant or editor integration can start and inspect sessions.
//
// Methods: initialize, ping, tools/list and tools/call. Tools:
// convert_and_sync, sync_status and sync_stop. Requests arrive over stdio
// (one JSON message per line) or over a WebSocket.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/mdsync/mdsync/internal/convert"
	"github.com/mdsync/mdsync/internal/engine"
)

// Engine is the part of the session registry the tools drive.
type Engine interface {
	CreateAndStart(ctx context.Context, opts engine.Options) (string, error)
	Status(id string) (engine.Status, bool)
	StatusAll() []engine.Status
	Stop(id string) error
}

// Config holds server configuration.
type Config struct {
	// Name and Version are reported by initialize
	Name    string
	Version string

	// TextExt and RenderedExt validate incoming paths (default: .md and .docx)
	TextExt     string
	RenderedExt string

	// Logger for protocol activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:        "mdsync",
		Version:     "dev",
		TextExt:     convert.TextExt,
		RenderedExt: convert.RenderedExt,
		Logger:      log.New(os.Stderr, "[tools] ", log.LstdFlags),
	}
}

// Server dispatches JSON-RPC requests to the tools.
type Server struct {
	config *Config
	engine Engine
}

// NewServer creates a tool server backed by eng.
func NewServer(config *Config, eng Engine) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Version == "" {
		config.Version = defaults.Version
	}
	if config.TextExt == "" {
		config.TextExt = defaults.TextExt
	}
	if config.RenderedExt == "" {
		config.RenderedExt = defaults.RenderedExt
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Server{config: config, engine: eng}
}

// Tools returns the tool catalog.
func (s *Server) Tools() []Tool {
	pathProps := map[string]Property{
		"textPath":         {Type: "string", Description: "Markdown file path"},
		"renderedPath":     {Type: "string", Description: "DOCX file path"},
		"markdownPath":     {Type: "string", Description: "Alias of textPath"},
		"docxPath":         {Type: "string", Description: "Alias of renderedPath"},
		"bidirectional":    {Type: "boolean", Description: "Sync DOCX edits back to Markdown (default true)"},
		"watch":            {Type: "boolean", Description: "Keep watching for changes (default true)"},
		"openRendered":     {Type: "boolean", Description: "Open the DOCX after seeding (default true)"},
		"openDocx":         {Type: "boolean", Description: "Alias of openRendered"},
		"preferPrimaryApp": {Type: "boolean", Description: "Prefer Word over alternatives (default true)"},
		"preferWord":       {Type: "boolean", Description: "Alias of preferPrimaryApp"},
	}
	idProp := map[string]Property{
		"sessionId": {Type: "string", Description: "Session id"},
	}

	return []Tool{
		{
			Name:        "convert_and_sync",
			Description: "Convert and start sync between Markdown and DOCX",
			InputSchema: InputSchema{Type: "object", Properties: pathProps},
		},
		{
			Name:        "sync_status",
			Description: "Get sync sessions status",
			InputSchema: InputSchema{Type: "object", Properties: idProp},
		},
		{
			Name:        "sync_stop",
			Description: "Stop a sync session",
			InputSchema: InputSchema{Type: "object", Properties: idProp, Required: []string{"sessionId"}},
		},
	}
}

// Handle processes one raw JSON-RPC message and returns the encoded
// response, or nil for a notification.
func (s *Server) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.encode(Response{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &Error{Code: CodeParseError, Message: "parse error: " + err.Error()},
		})
	}

	result, rpcErr := s.dispatch(ctx, &req)
	if req.IsNotification() {
		return nil
	}

	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	return s.encode(resp)
}

func (s *Server) encode(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		s.config.Logger.Printf("Failed to encode response: %v", err)
		data, _ = json.Marshal(Response{
			JSONRPC: "2.0",
			ID:      resp.ID,
			Error:   &Error{Code: CodeInternalError, Message: "failed to encode response"},
		})
	}
	return data
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return nil, &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	}

	switch req.Method {
	case "initialize":
		return map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"serverInfo": map[string]string{
				"name":    s.config.Name,
				"version": s.config.Version,
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		}, nil
	case "notifications/initialized", "notifications/cancelled":
		return nil, nil
	case "ping":
		return map[string]interface{}{}, nil
	case "tools/list":
		return map[string]interface{}{"tools": s.Tools()}, nil
	case "tools/call":
		var params callParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			return nil, &Error{Code: CodeInvalidParams, Message: "tools/call requires a tool name"}
		}
		return s.Call(ctx, params.Name, params.Arguments)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

// Call runs one tool. An unknown tool is a protocol error; a tool that fails
// returns a result with IsError set.
func (s *Server) Call(ctx context.Context, name string, args json.RawMessage) (*ToolResult, *Error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	switch name {
	case "convert_and_sync":
		var a syncArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
		return s.convertAndSync(ctx, a), nil
	case "sync_status":
		var a sessionArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
		return s.syncStatus(a), nil
	case "sync_stop":
		var a sessionArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid arguments: " + err.Error()}
		}
		return s.syncStop(a), nil
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "unknown tool: " + name}
	}
}

// Options converts tool arguments into session options. Unset booleans
// default to true and the original argument names are honored.
func (a syncArgs) Options() engine.Options {
	opts := engine.DefaultOptions()
	opts.TextPath = firstNonEmpty(a.TextPath, a.MarkdownPath)
	opts.RenderedPath = firstNonEmpty(a.RenderedPath, a.DocxPath)
	opts.Bidirectional = boolOr(true, a.Bidirectional)
	opts.Watch = boolOr(true, a.Watch)
	opts.OpenRendered = boolOr(true, a.OpenRendered, a.OpenDocx)
	opts.PreferPrimaryApp = boolOr(true, a.PreferPrimaryApp, a.PreferWord)
	return opts
}

func (s *Server) convertAndSync(ctx context.Context, a syncArgs) *ToolResult {
	opts := a.Options()
	if opts.TextPath == "" && opts.RenderedPath == "" {
		return errorResult("textPath (markdownPath) or renderedPath (docxPath) is required")
	}
	if err := s.checkPaths(opts); err != nil {
		return errorResult(err.Error())
	}

	id, err := s.engine.CreateAndStart(ctx, opts)
	if err != nil {
		s.config.Logger.Printf("convert_and_sync failed: %v", err)
		return errorResult(err.Error())
	}
	return textResult("Session started: " + id)
}

func (s *Server) checkPaths(opts engine.Options) error {
	if opts.TextPath != "" {
		side, err := engine.ClassifyPath(opts.TextPath, s.config.TextExt, s.config.RenderedExt)
		if err != nil {
			return err
		}
		if side != engine.SideText {
			return fmt.Errorf("%w: textPath %s is not a %s file", engine.ErrUnsupportedPath, opts.TextPath, s.config.TextExt)
		}
	}
	if opts.RenderedPath != "" {
		side, err := engine.ClassifyPath(opts.RenderedPath, s.config.TextExt, s.config.RenderedExt)
		if err != nil {
			return err
		}
		if side != engine.SideRendered {
			return fmt.Errorf("%w: renderedPath %s is not a %s file", engine.ErrUnsupportedPath, opts.RenderedPath, s.config.RenderedExt)
		}
	}
	return nil
}

func (s *Server) syncStatus(a sessionArgs) *ToolResult {
	var v interface{}
	if a.SessionID == "" {
		v = s.engine.StatusAll()
	} else if st, ok := s.engine.Status(a.SessionID); ok {
		v = st
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(string(data))
}

func (s *Server) syncStop(a sessionArgs) *ToolResult {
	if a.SessionID == "" {
		return errorResult("sessionId is required")
	}
	if err := s.engine.Stop(a.SessionID); err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			return errorResult("session not found: " + a.SessionID)
		}
		return errorResult(err.Error())
	}
	return textResult("Session stopped: " + a.SessionID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(def bool, values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return def
}
