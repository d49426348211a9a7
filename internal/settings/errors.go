package settings

import (
	"errors"
	"fmt"

	"github.com/dshills/cfgsync/internal/settings/document"
	"github.com/dshills/cfgsync/internal/settings/value"
)

// Errors returned by Manager operations.
var (
	// ErrReadOnly indicates a write to the enterprise layer or an unwritable file.
	ErrReadOnly = document.ErrReadOnly

	// ErrInvalidDocument indicates an edit of a layer whose file did not parse.
	ErrInvalidDocument = document.ErrInvalidDocument

	// ErrNotJSONLayer indicates a memory layer was used as an edit target.
	ErrNotJSONLayer = document.ErrNotJSONLayer

	// ErrInvalidPath indicates a malformed dot path.
	ErrInvalidPath = value.ErrInvalidPath

	// ErrLayerNotLoaded indicates the layer is outside the manager's scope.
	ErrLayerNotLoaded = errors.New("settings layer is not loaded")

	// ErrSettingNotFound indicates the dot path is not defined in the layer.
	ErrSettingNotFound = errors.New("setting not found")

	// ErrSameLayer indicates a move whose source and target are identical.
	ErrSameLayer = errors.New("source and target layer are the same")

	// ErrClosed indicates use of a closed manager.
	ErrClosed = errors.New("settings manager is closed")
)

// ReloadError is reported once a file has failed to reload the configured
// number of consecutive times.
type ReloadError struct {
	// Path is the file that failed to reload.
	Path string
	// Failures is the number of consecutive failures.
	Failures int
	// Err is the last failure.
	Err error
}

// Error implements the error interface.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload %s failed %d times: %v", e.Path, e.Failures, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReloadError) Unwrap() error {
	return e.Err
}
