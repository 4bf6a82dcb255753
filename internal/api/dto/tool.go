package dto

import "encoding/json"

// ToolCallRequest carries the JSON arguments of a function call. Arguments
// may be an object or a JSON-encoded string, as realtime sessions send it.
type ToolCallRequest struct {
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResponse carries the tool output
type ToolCallResponse struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}
