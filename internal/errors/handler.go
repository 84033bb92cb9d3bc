// Package errors provides the strategies that decide what a producer does
// when its task source fails.
package errors

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jzx17/fifocopy/internal/logging"
)

// Policy names accepted in configuration.
const (
	// PolicyStop ends the producer on the first source failure
	PolicyStop = "stop"
	// PolicySkip logs the failure, drops the malformed unit and keeps reading
	PolicySkip = "skip"
)

// ErrorHandler decides how a failure is handled
type ErrorHandler interface {
	// HandleError returns nil when the failure was absorbed, or an error
	// that should end the caller's loop
	HandleError(ctx context.Context, errCtx *ErrorContext) error

	// Name returns the name of the error handler
	Name() string
}

// ErrorContext defines context information when error occurs
type ErrorContext struct {
	// Error that occurred
	Error error

	// OperationName is the name of the operation where error occurred
	OperationName string

	// Timestamp when the error occurred
	Timestamp time.Time

	// Occurrence counts failures seen so far by the caller, starting at 1
	Occurrence int

	// Metadata contains additional metadata information
	Metadata map[string]interface{}
}

// NewErrorContext creates a new error context
func NewErrorContext(err error, operationName string) *ErrorContext {
	return &ErrorContext{
		Error:         err,
		OperationName: operationName,
		Timestamp:     time.Now(),
		Occurrence:    1,
		Metadata:      make(map[string]interface{}),
	}
}

// FailFastHandler implements the stop policy
type FailFastHandler struct{}

// NewFailFastHandler creates a new fail-fast handler
func NewFailFastHandler() *FailFastHandler {
	return &FailFastHandler{}
}

// HandleError returns the original error
func (h *FailFastHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	return errCtx.Error
}

// Name returns the handler name
func (h *FailFastHandler) Name() string {
	return PolicyStop
}

// ContinueOnErrorHandler implements the skip policy
type ContinueOnErrorHandler struct {
	logger *slog.Logger

	// fatalTypes lists error types that are never skipped
	fatalTypes map[reflect.Type]bool
	mu         sync.RWMutex
}

// NewContinueOnErrorHandler creates a handler that logs and absorbs failures
func NewContinueOnErrorHandler(logger *slog.Logger) *ContinueOnErrorHandler {
	return &ContinueOnErrorHandler{
		logger:     logging.OrNop(logger),
		fatalTypes: make(map[reflect.Type]bool),
	}
}

// HandleError implements the ErrorHandler interface
func (h *ContinueOnErrorHandler) HandleError(ctx context.Context, errCtx *ErrorContext) error {
	if h.isFatal(errCtx.Error) {
		return errCtx.Error
	}

	h.logger.Warn("skipping failed unit",
		logging.String("operation", errCtx.OperationName),
		logging.Int("occurrence", errCtx.Occurrence),
		logging.Event("source_unit_skipped"),
		logging.Error(errCtx.Error),
	)
	return nil
}

// Name returns the handler name
func (h *ContinueOnErrorHandler) Name() string {
	return PolicySkip
}

// isFatal reports whether err, or any error it wraps, has a fatal type.
func (h *ContinueOnErrorHandler) isFatal(err error) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.fatalTypes) == 0 {
		return false
	}

	pending := []error{err}
	for len(pending) > 0 {
		cur := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if cur == nil {
			continue
		}
		if h.fatalTypes[reflect.TypeOf(cur)] {
			return true
		}
		switch u := cur.(type) {
		case interface{ Unwrap() error }:
			pending = append(pending, u.Unwrap())
		case interface{ Unwrap() []error }:
			pending = append(pending, u.Unwrap()...)
		}
	}
	return false
}

// AddFatalErrorType makes errors of err's dynamic type end the loop even
// under the skip policy, including when they arrive wrapped
func (h *ContinueOnErrorHandler) AddFatalErrorType(err error) {
	if err == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.fatalTypes[reflect.TypeOf(err)] = true
}

// HandlerRegistry is a registry for error handlers
type HandlerRegistry struct {
	handlers       map[string]ErrorHandler
	defaultHandler ErrorHandler
	mu             sync.RWMutex
}

// NewHandlerRegistry creates a registry holding the stop and skip handlers,
// with stop as the default
func NewHandlerRegistry(logger *slog.Logger) *HandlerRegistry {
	failFast := NewFailFastHandler()

	registry := &HandlerRegistry{
		handlers:       make(map[string]ErrorHandler),
		defaultHandler: failFast,
	}
	_ = registry.RegisterHandler(failFast)
	_ = registry.RegisterHandler(NewContinueOnErrorHandler(logger))

	return registry
}

// RegisterHandler registers an error handler
func (r *HandlerRegistry) RegisterHandler(handler ErrorHandler) error {
	if handler == nil {
		return fmt.Errorf("cannot register nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("handler with name %s already exists", name)
	}

	r.handlers[name] = handler
	return nil
}

// GetHandler gets an error handler by name
func (r *HandlerRegistry) GetHandler(name string) (ErrorHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, exists := r.handlers[strings.ToLower(strings.TrimSpace(name))]
	if !exists {
		return nil, fmt.Errorf("handler with name %q not found, expected one of: %s", name, strings.Join(r.listLocked(), ", "))
	}

	return handler, nil
}

// GetDefaultHandler gets the default error handler
func (r *HandlerRegistry) GetDefaultHandler() ErrorHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.defaultHandler
}

// ListHandlers lists all registered handler names in sorted order
func (r *HandlerRegistry) ListHandlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.listLocked()
}

func (r *HandlerRegistry) listLocked() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForPolicy returns the handler for a configured policy name. An empty
// name selects the default handler.
func ForPolicy(policy string, logger *slog.Logger) (ErrorHandler, error) {
	registry := NewHandlerRegistry(logger)
	if strings.TrimSpace(policy) == "" {
		return registry.GetDefaultHandler(), nil
	}
	return registry.GetHandler(policy)
}

// ValidPolicy reports whether policy names a known handler
func ValidPolicy(policy string) bool {
	name := strings.ToLower(strings.TrimSpace(policy))
	if name == "" {
		return true
	}
	for _, known := range PolicyNames() {
		if name == known {
			return true
		}
	}
	return false
}

// PolicyNames returns the accepted policy names in sorted order
func PolicyNames() []string {
	return NewHandlerRegistry(nil).ListHandlers()
}
