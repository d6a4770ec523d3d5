// Package suspicious classifies logins as impossible travel by comparing
// them with the user's most recent located login.
package suspicious

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/device-trust/pkg/activitylog"
	"github.com/tendant/device-trust/pkg/config"
	"github.com/tendant/device-trust/pkg/geo"
)

// Verdict is the outcome of an impossible travel check. DistanceKm and
// MinutesElapsed are set whenever a previous located login was compared.
type Verdict struct {
	IsSuspicious   bool     `json:"isSuspicious"`
	DistanceKm     *float64 `json:"distanceKm,omitempty"`
	MinutesElapsed *float64 `json:"minutesElapsed,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// HistorySource is the part of the activity log the detector reads
type HistorySource interface {
	LatestLoginWithCoordinates(ctx context.Context, userID uuid.UUID, since, until time.Time) (activitylog.Entry, error)
}

// Detector flags a login when it is more than DistanceKm away from a login
// less than Window ago.
type Detector struct {
	history    HistorySource
	distanceKm float64
	window     time.Duration
}

// NewDetector uses the thresholds of cfg (500 km, 30 minutes by default)
func NewDetector(history HistorySource, cfg config.TrustConfig) *Detector {
	d := &Detector{
		history:    history,
		distanceKm: cfg.SuspiciousDistanceKm,
		window:     cfg.SuspiciousWindow,
	}
	if d.distanceKm <= 0 {
		d.distanceKm = config.DefaultSuspiciousDistanceKm
	}
	if d.window <= 0 {
		d.window = config.DefaultSuspiciousWindow
	}
	return d
}

// CheckImpossibleTravel compares loc at time at with the newest located login
// of the user inside the window. A missing history or missing coordinates
// is never suspicious. A history read failure is logged and treated as
// not suspicious.
func (d *Detector) CheckImpossibleTravel(ctx context.Context, userID uuid.UUID, loc *geo.Location, at time.Time) Verdict {
	if !loc.HasCoordinates() {
		return Verdict{}
	}

	prev, err := d.history.LatestLoginWithCoordinates(ctx, userID, at.Add(-d.window), at)
	if errors.Is(err, activitylog.ErrNotFound) {
		return Verdict{}
	}
	if err != nil {
		slog.Warn("Impossible travel check skipped", "user_id", userID, "error", err)
		return Verdict{}
	}

	distance, ok := prev.Location.DistanceTo(loc)
	if !ok {
		return Verdict{}
	}

	minutes := at.Sub(prev.Timestamp).Minutes()
	if minutes < 0 {
		minutes = 0
	}

	v := Verdict{
		IsSuspicious:   distance > d.distanceKm && minutes < d.window.Minutes(),
		DistanceKm:     &distance,
		MinutesElapsed: &minutes,
	}
	if v.IsSuspicious {
		v.Reason = fmt.Sprintf("Impossible travel: %.0fkm in %.0f minutes", math.Round(distance), math.Round(minutes))
		slog.Warn("Impossible travel detected",
			"user_id", userID,
			"distance_km", math.Round(distance),
			"minutes", math.Round(minutes),
			"previous_city", prev.Location.City,
			"city", loc.City)
	}
	return v
}
