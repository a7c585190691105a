package toolserver

import "encoding/json"

// ProtocolVersion is the tool protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC 2.0 request or notification. Notifications have no
// ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Tool describes one callable tool.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON schema of a tool's arguments.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is one argument in an InputSchema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Content is one item of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the result of tools/call. Tool failures are reported with
// IsError rather than as protocol errors.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

func textResult(text string) *ToolResult {
	return &ToolResult{Content: []Content{{Type: "text", Text: text}}}
}

func errorResult(text string) *ToolResult {
	r := textResult(text)
	r.IsError = true
	return r
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// syncArgs are the convert_and_sync arguments. The second name of each pair
// is accepted as an alias.
type syncArgs struct {
	TextPath         string `json:"textPath"`
	MarkdownPath     string `json:"markdownPath"`
	RenderedPath     string `json:"renderedPath"`
	DocxPath         string `json:"docxPath"`
	Bidirectional    *bool  `json:"bidirectional"`
	Watch            *bool  `json:"watch"`
	OpenRendered     *bool  `json:"openRendered"`
	OpenDocx         *bool  `json:"openDocx"`
	PreferPrimaryApp *bool  `json:"preferPrimaryApp"`
	PreferWord       *bool  `json:"preferWord"`
}

type sessionArgs struct {
	SessionID string `json:"sessionId"`
}
