package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"cryomcp/internal/errors"
)

// handleMessage processes an incoming MCP message and returns a response
func (s *Server) handleMessage(msg *MCPMessage) *MCPMessage {
	// Handle requests
	if msg.IsRequest() {
		return s.handleRequest(msg)
	}

	// Handle notifications (no response needed)
	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}

	// This server never sends requests, so inbound responses are stray.
	if msg.IsResponse() {
		s.logger.Debug("Ignoring unsolicited response", "id", msg.Id)
		return nil
	}

	// Invalid message
	return NewErrorMessage(msg.Id, InvalidRequest, "Invalid message: not a request or notification", nil)
}

// handleRequest handles a JSON-RPC request
func (s *Server) handleRequest(msg *MCPMessage) *MCPMessage {
	s.logger.Debug("Handling request",
		"method", msg.Method,
		"id", msg.Id,
	)

	switch msg.Method {
	case "initialize":
		return s.handleInitializeRequest(msg)
	case "ping":
		return NewResultMessage(msg.Id, map[string]interface{}{})
	case "tools/list":
		return s.handleListToolsRequest(msg)
	case "tools/call":
		return s.handleCallToolRequest(msg)
	case "resources/list":
		return s.handleListResourcesRequest(msg)
	case "resources/read":
		return s.handleReadResourceRequest(msg)
	default:
		return NewErrorMessage(msg.Id, MethodNotFound, fmt.Sprintf("Method not found: %s", msg.Method), nil)
	}
}

// handleNotification handles a JSON-RPC notification
func (s *Server) handleNotification(msg *MCPMessage) {
	s.logger.Debug("Handling notification",
		"method", msg.Method,
	)

	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("Client initialized")
	default:
		s.logger.Debug("Unknown notification",
			"method", msg.Method,
		)
	}
}

// handleInitializeRequest handles the initialize request
func (s *Server) handleInitializeRequest(msg *MCPMessage) *MCPMessage {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		params = make(map[string]interface{})
	}

	result, err := s.handleInitialize(params)
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, err.Error(), nil)
	}

	return NewResultMessage(msg.Id, result)
}

// handleListToolsRequest handles the tools/list request
func (s *Server) handleListToolsRequest(msg *MCPMessage) *MCPMessage {
	return NewResultMessage(msg.Id, map[string]interface{}{
		"tools": s.GetToolDefinitions(),
	})
}

// handleCallToolRequest handles the tools/call request
func (s *Server) handleCallToolRequest(msg *MCPMessage) *MCPMessage {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		return NewErrorMessage(msg.Id, InvalidParams, "Invalid params: expected object", nil)
	}

	result, err := s.handleCallTool(params)
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, err.Error(), nil)
	}

	return NewResultMessage(msg.Id, result)
}

// handleListResourcesRequest handles the resources/list request
func (s *Server) handleListResourcesRequest(msg *MCPMessage) *MCPMessage {
	result, err := s.handleListResources()
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, err.Error(), nil)
	}

	return NewResultMessage(msg.Id, result)
}

// handleReadResourceRequest handles the resources/read request
func (s *Server) handleReadResourceRequest(msg *MCPMessage) *MCPMessage {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		return NewErrorMessage(msg.Id, InvalidParams, "Invalid params: expected object", nil)
	}

	result, err := s.handleReadResource(params)
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, err.Error(), nil)
	}

	return NewResultMessage(msg.Id, result)
}

// handleCallTool executes a tool. Handler failures become structured
// isError results; only protocol-level problems produce JSON-RPC errors.
func (s *Server) handleCallTool(params map[string]interface{}) (interface{}, error) {
	toolName, ok := params["name"].(string)
	if !ok {
		return nil, errors.NewInvalidParameterError("name", "")
	}

	toolParams, ok := params["arguments"].(map[string]interface{})
	if !ok {
		toolParams = make(map[string]interface{})
	}

	handler, exists := s.tools[toolName]
	if !exists {
		return nil, errors.NewResourceNotFoundError("tool", toolName)
	}

	s.logger.Info("Calling tool",
		"tool", toolName,
	)

	start := time.Now()
	result, err := handler(toolParams)
	s.recordUsage(toolName, err, time.Since(start))

	if err != nil {
		cryoErr := asCryoError(err)
		s.logger.Warn("Tool failed",
			"tool", toolName,
			"code", cryoErr.Code,
			"error", err.Error(),
		)

		jsonBytes, mErr := json.Marshal(cryoErr)
		if mErr != nil {
			return nil, errors.NewOperationError("marshal error payload", mErr)
		}
		return toolContent(jsonBytes, true), nil
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return nil, errors.NewOperationError("marshal response", err)
	}

	return toolContent(jsonBytes, false), nil
}

// toolContent wraps a JSON payload in the MCP tool-result content shape
func toolContent(payload []byte, isError bool) map[string]interface{} {
	result := map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": string(payload),
			},
		},
	}
	if isError {
		result["isError"] = true
	}
	return result
}

// asCryoError normalizes any handler error into the structured taxonomy
func asCryoError(err error) *errors.CryoError {
	if ce, ok := err.(*errors.CryoError); ok {
		return ce
	}
	return errors.New(errors.InternalError, err.Error(), nil)
}

// recordUsage persists one tool invocation to the usage store, if present.
// Recording failures are logged and never surface to the caller.
func (s *Server) recordUsage(toolName string, callErr error, elapsed time.Duration) {
	if s.store == nil {
		return
	}

	detail := ""
	if callErr != nil {
		detail = string(asCryoError(callErr).Code)
	}

	if err := s.store.RecordToolCall(toolName, callErr == nil, elapsed.Milliseconds(), detail); err != nil {
		s.logger.Warn("Failed to record tool call",
			"tool", toolName,
			"error", err.Error(),
		)
	}
}
