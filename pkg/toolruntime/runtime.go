// Package toolruntime manages the catalog of chat-corpus tools and executes
// normalized tool calls on behalf of the agent.
//
// Invariants:
// - Execute and ExecuteBatch never return an error: failures are reported
//   inside the Result so the model can react to them.
// - Batch results are positionally aligned with the calls that produced them.
package toolruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SanJoeng/ChatLab/pkg/llm"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// ToolParameter defines a parameter for a tool.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution.
type ToolHandler func(ctx context.Context, params map[string]interface{}, execCtx *ExecutionContext) (interface{}, error)

// TimeRange restricts tool queries to a message time window. Zero values
// mean unbounded.
type TimeRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// ExecutionContext provides runtime information for tool execution.
type ExecutionContext struct {
	ChatKey     string        // owner identity of the corpus being queried
	MaxMessages int           // cap on messages any single tool may return
	TimeRange   *TimeRange    // optional time window filter
	Locale      string        // locale for formatted output
	Timeout     time.Duration // per-call timeout, defaults to 30s
}

// Result represents the outcome of one tool execution.
type Result struct {
	Success   bool        `json:"success"`
	Output    interface{} `json:"output,omitempty"`
	Error     string      `json:"error,omitempty"`
	Truncated bool        `json:"truncated,omitempty"`
}

// Executor manages and executes tools.
type Executor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// New creates a new Executor.
func New() *Executor {
	return &Executor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register registers a new tool.
func (e *Executor) Register(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	e.tools[def.Name] = &def
	e.schemas[def.Name] = schema

	log.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Has reports whether a tool with the given name is registered.
func (e *Executor) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.tools[name]
	return ok
}

// List returns all registered tool names, sorted.
func (e *Executor) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Schemas returns the tool schema catalog to attach to model calls.
func (e *Executor) Schemas() []llm.ToolSchema {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		def := e.tools[name]
		schemas = append(schemas, llm.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  parameterSchema(def),
		})
	}

	return schemas
}

// ExecuteBatch executes a batch of normalized tool calls and returns one
// result per call in call order. Failures never abort the batch.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []llm.ToolCall, execCtx *ExecutionContext) []Result {
	results := make([]Result, len(calls))

	for i, call := range calls {
		var params map[string]interface{}
		if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
			log.Error().Str("tool", call.Name).Err(err).Msg("Malformed tool arguments")
			results[i] = Result{
				Success: false,
				Error:   fmt.Sprintf("malformed tool arguments: %v", err),
			}
			continue
		}
		results[i] = e.Execute(ctx, call.Name, params, execCtx)
	}

	return results
}

// Execute executes a single tool with the given parameters.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}, execCtx *ExecutionContext) Result {
	startTime := time.Now()

	e.mu.RLock()
	tool := e.tools[toolName]
	schema := e.schemas[toolName]
	e.mu.RUnlock()

	if tool == nil {
		log.Error().Str("tool", toolName).Msg("Tool not found")
		return Result{
			Success: false,
			Error:   fmt.Sprintf("tool not found: %s", toolName),
		}
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	if err := validateParameters(schema, params); err != nil {
		log.Error().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return Result{
			Success: false,
			Error:   fmt.Sprintf("parameter validation failed: %v", err),
		}
	}

	timeout := 30 * time.Second
	if execCtx != nil && execCtx.Timeout > 0 {
		timeout = execCtx.Timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool panicked: %v", r)
			}
		}()
		result, err := tool.Handler(timeoutCtx, params, execCtx)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		duration := time.Since(startTime)
		output, truncated := truncateOutput(result)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")

		return Result{
			Success:   true,
			Output:    output,
			Truncated: truncated,
		}

	case err := <-errChan:
		log.Error().
			Str("tool", toolName).
			Dur("duration", time.Since(startTime)).
			Err(err).
			Msg("Tool execution failed")

		return Result{
			Success: false,
			Error:   err.Error(),
		}

	case <-timeoutCtx.Done():
		if err := ctx.Err(); err != nil {
			log.Warn().
				Str("tool", toolName).
				Dur("duration", time.Since(startTime)).
				Err(err).
				Msg("Tool execution canceled")

			return Result{
				Success: false,
				Error:   fmt.Sprintf("tool execution canceled: %v", err),
			}
		}

		log.Error().
			Str("tool", toolName).
			Dur("duration", time.Since(startTime)).
			Msg("Tool execution timeout")

		return Result{
			Success: false,
			Error:   fmt.Sprintf("tool execution timeout after %v", timeout),
		}
	}
}

// validateToolDefinition validates a tool definition.
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// parameterSchema builds the JSON Schema object describing a tool's
// parameters, shared by the compiled validator and the model catalog.
func parameterSchema(def *ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return schemaMap
}

// compileSchema compiles the parameter schema for validation.
func compileSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	schemaLoader := gojsonschema.NewGoLoader(parameterSchema(&def))
	return gojsonschema.NewSchema(schemaLoader)
}

// validateParameters validates parameters against a compiled JSON Schema.
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	paramsLoader := gojsonschema.NewGoLoader(params)
	result, err := schema.Validate(paramsLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		errors := []string{}
		for _, err := range result.Errors() {
			errors = append(errors, err.String())
		}
		return fmt.Errorf("validation errors: %v", errors)
	}

	return nil
}

// truncateOutput truncates output if it exceeds the size limit.
func truncateOutput(output interface{}) (interface{}, bool) {
	const maxSize = 10 * 1024 // 10KB

	str := fmt.Sprintf("%v", output)
	if len(str) <= maxSize {
		return output, false
	}

	truncated := str[:maxSize] + "\n... [output truncated]"
	log.Warn().
		Int("original", len(str)).
		Int("truncated", maxSize).
		Msg("Output truncated")

	return truncated, true
}
