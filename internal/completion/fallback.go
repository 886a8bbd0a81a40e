package completion

import (
	"context"
	"errors"
	"fmt"
)

// FallbackGateway attempts a primary gateway first and falls back on error.
type FallbackGateway struct {
	primary  Gateway
	fallback Gateway
}

func NewFallbackGateway(primary, fallback Gateway) *FallbackGateway {
	return &FallbackGateway{
		primary:  primary,
		fallback: fallback,
	}
}

func (g *FallbackGateway) Complete(ctx context.Context, req Request) (Response, error) {
	if g.primary == nil {
		if g.fallback != nil {
			return g.fallback.Complete(ctx, req)
		}
		return Response{}, fmt.Errorf("fallback gateway misconfigured")
	}

	resp, err := g.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}
	if g.fallback == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := g.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary gateway error: %w; fallback gateway error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
