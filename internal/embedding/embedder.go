package embedding

import (
	"context"
	"errors"
	"net"
)

// ErrUnavailable marks failures caused by the embedding service being
// unreachable, overloaded, or erroring on its side.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder defines the interface contract for embedding generation services.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// isNetworkError reports whether err came from the transport rather than
// from the service's response.
func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
