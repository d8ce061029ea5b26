package orbit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/handover-engine/core"
	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/model"
)

// RadioConfig holds the link parameters used to estimate RSRP from range.
type RadioConfig struct {
	// FrequencyGHz is the downlink carrier frequency.
	FrequencyGHz float64
	// TxEIRPdBm is the satellite beam EIRP.
	TxEIRPdBm float64
	// RxGainDBi is the terminal antenna gain.
	RxGainDBi float64
}

// DefaultRadioConfig returns Ku-band defaults typical of a LEO user link.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		FrequencyGHz: 12.0,
		TxEIRPdBm:    50.0,
		RxGainDBi:    35.0,
	}
}

// EstimateRSRPdBm computes received power from slant range using the
// free-space path loss model.
func EstimateRSRPdBm(cfg RadioConfig, rangeKm float64) float64 {
	if rangeKm <= 0 {
		rangeKm = 0.001
	}
	fspl := 92.45 + 20*math.Log10(rangeKm) + 20*math.Log10(cfg.FrequencyGHz)
	return cfg.TxEIRPdBm + cfg.RxGainDBi - fspl
}

// groundTerminal is a fixed UE position on the spherical Earth model.
type groundTerminal struct {
	LatDeg float64
	LonDeg float64
	AltKm  float64
}

// SGP4Provider implements core.GeometryProvider by propagating satellite
// TLEs with SGP4 and computing look angles against registered terminals.
type SGP4Provider struct {
	mu        sync.RWMutex
	sats      map[string]satellite.Satellite
	terminals map[string]groundTerminal
	radio     RadioConfig
	log       logging.Logger
}

// NewSGP4Provider constructs an empty provider with the given radio model.
func NewSGP4Provider(radio RadioConfig, log logging.Logger) *SGP4Provider {
	if log == nil {
		log = logging.Noop()
	}
	return &SGP4Provider{
		sats:      make(map[string]satellite.Satellite),
		terminals: make(map[string]groundTerminal),
		radio:     radio,
		log:       log,
	}
}

// AddSatellite registers a satellite under id from its TLE lines.
func (p *SGP4Provider) AddSatellite(id, line1, line2 string) {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	p.mu.Lock()
	p.sats[id] = sat
	p.mu.Unlock()
}

// AddTerminal registers a fixed ground terminal under id.
func (p *SGP4Provider) AddTerminal(id string, latDeg, lonDeg, altKm float64) {
	p.mu.Lock()
	p.terminals[id] = groundTerminal{LatDeg: latDeg, LonDeg: lonDeg, AltKm: altKm}
	p.mu.Unlock()
}

// SatelliteIDs returns the registered satellite identifiers.
func (p *SGP4Provider) SatelliteIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.sats))
	for id := range p.sats {
		ids = append(ids, id)
	}
	return ids
}

// Sample propagates the satellite to the requested time and returns the
// observation as seen from the terminal. Unknown identifiers, failed
// propagations and paths the Earth blocks all report
// core.ErrGeometryUnavailable.
func (p *SGP4Provider) Sample(ctx context.Context, satelliteID, ueID string, at time.Time) (model.SatelliteObservation, error) {
	if err := ctx.Err(); err != nil {
		return model.SatelliteObservation{}, err
	}

	p.mu.RLock()
	sat, okSat := p.sats[satelliteID]
	term, okTerm := p.terminals[ueID]
	radio := p.radio
	p.mu.RUnlock()

	if !okSat {
		return model.SatelliteObservation{}, fmt.Errorf("satellite %q not registered: %w", satelliteID, core.ErrGeometryUnavailable)
	}
	if !okTerm {
		return model.SatelliteObservation{}, fmt.Errorf("terminal %q not registered: %w", ueID, core.ErrGeometryUnavailable)
	}

	satPos, ok := propagateECEF(sat, at.UTC())
	if !ok {
		return model.SatelliteObservation{}, fmt.Errorf("propagate %q at %s: %w", satelliteID, at.UTC().Format(time.RFC3339), core.ErrGeometryUnavailable)
	}

	uePos := GeodeticToECEF(term.LatDeg, term.LonDeg, term.AltKm)
	if !HasLineOfSight(uePos, satPos) {
		return model.SatelliteObservation{}, fmt.Errorf("earth blocks %s as seen from %s at %s: %w",
			satelliteID, ueID, at.UTC().Format(time.RFC3339), core.ErrGeometryUnavailable)
	}
	rangeKm := uePos.DistanceTo(satPos)

	obs := model.SatelliteObservation{
		SatelliteID:  satelliteID,
		UEID:         ueID,
		Timestamp:    at,
		ElevationDeg: ElevationDegrees(uePos, satPos),
		AzimuthDeg:   AzimuthDegrees(uePos, satPos),
		RangeKm:      rangeKm,
		RSRPDBm:      EstimateRSRPdBm(radio, rangeKm),
	}
	if !obs.Valid() {
		return model.SatelliteObservation{}, fmt.Errorf("degenerate geometry for %s/%s: %w", satelliteID, ueID, core.ErrGeometryUnavailable)
	}
	return obs, nil
}

// propagateECEF runs SGP4 and rotates the ECI state into ECEF kilometres.
func propagateECEF(sat satellite.Satellite, t time.Time) (Vec3, bool) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	v := Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z) || v.Norm() < EarthRadiusKm {
		return Vec3{}, false
	}
	return v, true
}
