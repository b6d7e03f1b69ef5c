package geo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMatrix struct {
	km  float64
	err error
}

func (f *fakeMatrix) Distance(_ context.Context, _, _ Coordinates) (float64, error) {
	return f.km, f.err
}

func TestResolveHaversineDefault(t *testing.T) {
	r := NewResolver(nil, time.Second, discardLogger())
	res, err := r.Resolve(context.Background(), Coordinates{40.4168, -3.7038}, Coordinates{41.3874, 2.1686}, ResolveOptions{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Method != MethodHaversine {
		t.Errorf("expected haversine method, got %s", res.Method)
	}
	if math.Abs(res.DistanceKm-504) > 10 {
		t.Errorf("expected ~504 km, got %f", res.DistanceKm)
	}
	if res.FallbackReason != "" {
		t.Errorf("unexpected fallback reason: %s", res.FallbackReason)
	}
}

func TestResolveMatrixSuccess(t *testing.T) {
	r := NewResolver(&fakeMatrix{km: 620}, time.Second, discardLogger())
	res, err := r.Resolve(context.Background(), Coordinates{40.4168, -3.7038}, Coordinates{41.3874, 2.1686},
		ResolveOptions{Method: MethodDistanceMatrix})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Method != MethodDistanceMatrix {
		t.Errorf("expected matrix method, got %s", res.Method)
	}
	if res.DistanceKm != 620 {
		t.Errorf("expected 620 km from matrix, got %f", res.DistanceKm)
	}
}

func TestResolveMatrixFailureFallsBack(t *testing.T) {
	r := NewResolver(&fakeMatrix{err: errors.New("quota exceeded")}, time.Second, discardLogger())
	res, err := r.Resolve(context.Background(), Coordinates{40.4168, -3.7038}, Coordinates{41.3874, 2.1686},
		ResolveOptions{Method: MethodDistanceMatrix})
	if err != nil {
		t.Fatalf("fallback must not surface an error, got: %v", err)
	}
	if res.Method != MethodHaversine {
		t.Errorf("expected haversine fallback, got %s", res.Method)
	}
	if res.FallbackReason == "" {
		t.Error("expected fallback reason to be recorded")
	}
	if math.Abs(res.DistanceKm-504) > 10 {
		t.Errorf("expected ~504 km from fallback, got %f", res.DistanceKm)
	}
}

func TestResolveInvalidCoordinates(t *testing.T) {
	r := NewResolver(nil, time.Second, discardLogger())
	_, err := r.Resolve(context.Background(), Coordinates{91, 0}, Coordinates{0, 0}, ResolveOptions{})
	if err == nil {
		t.Fatal("expected error for out-of-range latitude")
	}
	var ice *InvalidCoordinateError
	if !errors.As(err, &ice) {
		t.Errorf("expected InvalidCoordinateError, got %T", err)
	}

	_, err = r.Resolve(context.Background(), Coordinates{0, 0}, Coordinates{0, 200}, ResolveOptions{})
	if err == nil {
		t.Fatal("expected error for out-of-range longitude")
	}
}
