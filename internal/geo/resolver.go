package geo

import (
	"context"
	"log/slog"
	"time"
)

// Resolution method names.
const (
	MethodHaversine      = "haversine"
	MethodDistanceMatrix = "google_distance_matrix"
)

// Result is a single resolved distance. FallbackReason is non-empty when the
// external API was requested but Haversine was used instead.
type Result struct {
	DistanceKm     float64   `json:"distance_km"`
	Method         string    `json:"method"`
	CalculatedAt   time.Time `json:"calculated_at"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
}

// ResolveOptions selects the resolution method and bounds the external call.
type ResolveOptions struct {
	Method  string
	Timeout time.Duration
}

// Resolver computes distances external-API-first with a Haversine fallback.
// External failures are never surfaced to the caller as errors; they are
// recorded on the Result and the great-circle distance is returned.
type Resolver struct {
	matrix  MatrixClient
	timeout time.Duration
	logger  *slog.Logger
}

func NewResolver(matrix MatrixClient, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Resolver{matrix: matrix, timeout: timeout, logger: logger}
}

// Resolve validates both points and computes the distance between them.
// Out-of-range coordinates fail with InvalidCoordinateError and are not
// retried.
func (r *Resolver) Resolve(ctx context.Context, from, to Coordinates, opts ResolveOptions) (Result, error) {
	if _, err := NewCoordinates(from.Lat, from.Lng); err != nil {
		return Result{}, err
	}
	if _, err := NewCoordinates(to.Lat, to.Lng); err != nil {
		return Result{}, err
	}

	now := time.Now()

	if opts.Method == MethodDistanceMatrix && r.matrix != nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = r.timeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		km, err := r.matrix.Distance(callCtx, from, to)
		if err == nil {
			return Result{DistanceKm: km, Method: MethodDistanceMatrix, CalculatedAt: now}, nil
		}
		r.logger.Warn("distance matrix failed, falling back to haversine", "error", err)
		return Result{
			DistanceKm:     Haversine(from, to),
			Method:         MethodHaversine,
			CalculatedAt:   now,
			FallbackReason: err.Error(),
		}, nil
	}

	return Result{DistanceKm: Haversine(from, to), Method: MethodHaversine, CalculatedAt: now}, nil
}
