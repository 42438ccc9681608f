// ABOUTME: Error types the assembler returns for missing entities and bad parameters
// ABOUTME: The gateway maps NotFoundError to 404 and BadRequestError to 400

package hub

import (
	"fmt"

	"github.com/2389/hub-gateway/internal/store"
)

// NotFoundError reports that a requested plugin, variant, or maintainer does not exist.
// It matches store.ErrNotFound with errors.Is.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// Unwrap lets callers test for store.ErrNotFound
func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}

// BadRequestError reports a malformed or ambiguous request
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func pluginNotFound(name string, pluginType PluginType) error {
	if pluginType == "" {
		return &NotFoundError{Message: fmt.Sprintf("Plugin '%s' was not found", name)}
	}
	return &NotFoundError{Message: fmt.Sprintf("Plugin '%s' was not found in %s", name, pluginType)}
}

func variantNotFound(name, variant string, pluginType PluginType) error {
	if pluginType == "" {
		return &NotFoundError{Message: fmt.Sprintf("Variant '%s' of '%s' was not found", variant, name)}
	}
	return &NotFoundError{Message: fmt.Sprintf("Variant '%s' of '%s' was not found in %s", variant, name, pluginType)}
}

func maintainerNotFound(id string) error {
	return &NotFoundError{Message: fmt.Sprintf("Maintainer '%s' not found", id)}
}
