package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/tgerr"

	"github.com/skobkin/courier/internal/domain"
)

// classify maps an RPC error onto the sender's error vocabulary.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return domain.ErrCancelled
	}
	rpcErr, ok := tgerr.As(err)
	if !ok {
		return &domain.TransportError{Err: err}
	}
	if strings.HasPrefix(rpcErr.Type, "FILE_REFERENCE_") {
		return fmt.Errorf("%w: %s", domain.ErrStaleMediaReference, rpcErr.Type)
	}
	return &domain.TransportError{Code: rpcErr.Code, Type: rpcErr.Type, Err: err}
}

func isFloodWait(err error) bool {
	_, ok := tgerr.AsFloodWait(err)
	return ok
}
