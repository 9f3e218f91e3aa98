package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sr-verde/gitmentario/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("file already exists")
	ErrAlreadyExists = errors.New("branch already exists")
	ErrAuth          = errors.New("authentication failed")
	ErrNetwork       = errors.New("network error")
	ErrRequest       = errors.New("request rejected")
)

// Retryable reports whether err is worth another attempt after backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrAuth)
}

// FailureKind maps a forge error to the failure reported in an outcome.
func FailureKind(err error) model.FailureKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.FailureCancelled
	case errors.Is(err, ErrNetwork):
		return model.FailureNetwork
	case errors.Is(err, ErrAuth):
		return model.FailureAuth
	case errors.Is(err, ErrConflict):
		return model.FailureConflict
	default:
		return model.FailureForge
	}
}

type operation int

const (
	opRead operation = iota
	opCreateFile
	opCreateBranch
	opDeleteBranch
	opCreateRequest
)

func (o operation) String() string {
	switch o {
	case opRead:
		return "read file"
	case opCreateFile:
		return "create file"
	case opCreateBranch:
		return "create branch"
	case opDeleteBranch:
		return "delete branch"
	case opCreateRequest:
		return "create review request"
	}
	return "forge call"
}

// classify turns a provider error into one of the package sentinels while
// keeping the provider error in the chain. status is 0 when no HTTP response
// was received; message is the provider's error text, if any.
func classify(op operation, status int, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var kind error
	switch {
	case status == 0:
		kind = ErrNetwork
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrAuth
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity, status == http.StatusBadRequest && mentionsExisting(message):
		if op == opCreateBranch {
			kind = ErrAlreadyExists
		} else if op == opCreateFile {
			kind = ErrConflict
		} else {
			kind = ErrRequest
		}
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		kind = ErrNetwork
	default:
		kind = ErrRequest
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

func mentionsExisting(message string) bool {
	return strings.Contains(strings.ToLower(message), "already exists")
}
