package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/handover-engine/model"
)

// GeometryProvider maps (satellite, UE, instant) to a geometry and signal
// sample. It must be callable at arbitrary, possibly future instants within
// its supported horizon; implementations typically wrap an orbit-propagation
// collaborator.
//
// This is the engine's single suspension point: every other computation in
// the core is synchronous and allocation-light.
type GeometryProvider interface {
	Sample(ctx context.Context, satelliteID, ueID string, at time.Time) (model.SatelliteObservation, error)
}

// GeometryFunc adapts a plain function to the GeometryProvider interface.
type GeometryFunc func(ctx context.Context, satelliteID, ueID string, at time.Time) (model.SatelliteObservation, error)

func (f GeometryFunc) Sample(ctx context.Context, satelliteID, ueID string, at time.Time) (model.SatelliteObservation, error) {
	return f(ctx, satelliteID, ueID, at)
}
