package risk

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/matchguard/matchguard/internal/events"
	"github.com/matchguard/matchguard/internal/store"
	"github.com/matchguard/matchguard/params"
)

// LatLon is an optional client-reported location.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// profileState is the per-user signal history kept in hot storage. The
// centroid is a running approximation, good enough for a coarse distance
// signal.
type profileState struct {
	Lat       float64 `redis:"lat"`
	Lon       float64 `redis:"lon"`
	HasGeo    bool    `redis:"has_geo"`
	ActStart  int     `redis:"act_start"`
	ActEnd    int     `redis:"act_end"`
	HasWindow bool    `redis:"has_window"`
}

// Collector derives scoring signals from the security event log and the
// user's signal history. Velocity signals are re-derived from the log on
// every call instead of relying on separate counters that could drift.
type Collector struct {
	eventRepo  events.EventRepository
	stateStore store.Store[profileState]
}

// Collect assembles the risk context for one authentication event.
// Missing history yields nil signal fields, which the scorer skips.
func (c *Collector) Collect(ctx context.Context, userID uint, ip string, at time.Time, geo *LatLon) (Context, error) {
	riskCtx := Context{
		UserID:    userID,
		EventHour: at.Hour(),
	}

	state, err := c.stateStore.Get(ctx, userKey(userID))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return riskCtx, err
	}

	if geo != nil && state.HasGeo {
		dist := haversineKm(state.Lat, state.Lon, geo.Lat, geo.Lon)
		riskCtx.GeoDistanceKm = &dist
	}
	if state.HasWindow {
		riskCtx.ActivityWindow = &ActivityWindow{StartHour: state.ActStart, EndHour: state.ActEnd}
	}

	failed, ips, err := c.scanVelocity(ctx, userID, at)
	if err != nil {
		return riskCtx, err
	}
	riskCtx.FailedAttempts1h = &failed
	riskCtx.DistinctIPs15m = &ips
	return riskCtx, nil
}

// scanVelocity counts recent failed attempts and distinct source IPs from
// the event log.
func (c *Collector) scanVelocity(ctx context.Context, userID uint, at time.Time) (int, int, error) {
	rows, err := c.eventRepo.ListWindow(ctx, at.Add(-params.RiskFailedWindow), at.Add(time.Second))
	if err != nil {
		return 0, 0, err
	}

	failed := 0
	ipCutoff := at.Add(-params.RiskVelocityWindow)
	ipSet := make(map[string]struct{})
	for _, row := range rows {
		if row.UserID != userID {
			continue
		}
		if events.EventType(row.EventType) == events.TypeLoginFailure {
			failed++
		}
		if row.IPAddress != "" && !row.CreatedAt.Before(ipCutoff) {
			ipSet[row.IPAddress] = struct{}{}
		}
	}
	return failed, len(ipSet), nil
}

// RecordSuccess folds a clean authentication into the user's signal
// history: the geolocation centroid drifts toward the new point and the
// activity window stretches to include the event hour.
func (c *Collector) RecordSuccess(ctx context.Context, userID uint, at time.Time, geo *LatLon) error {
	key := userKey(userID)
	state, err := c.stateStore.Get(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if geo != nil {
		if state.HasGeo {
			state.Lat = state.Lat*0.8 + geo.Lat*0.2
			state.Lon = state.Lon*0.8 + geo.Lon*0.2
		} else {
			state.Lat, state.Lon = geo.Lat, geo.Lon
			state.HasGeo = true
		}
	}

	hour := at.Hour()
	if !state.HasWindow {
		state.ActStart, state.ActEnd = hour, hour
		state.HasWindow = true
	} else if !(ActivityWindow{StartHour: state.ActStart, EndHour: state.ActEnd}).Contains(hour, 0) {
		// stretch toward whichever edge is closer
		startDist := (state.ActStart - hour + 24) % 24
		endDist := (hour - state.ActEnd + 24) % 24
		if startDist <= endDist {
			state.ActStart = hour
		} else {
			state.ActEnd = hour
		}
	}

	return c.stateStore.Save(ctx, key, state)
}

func userKey(userID uint) string {
	return "risk:" + strconv.FormatUint(uint64(userID), 10)
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func NewCollector(storage store.Storage, eventRepo events.EventRepository) *Collector {
	return &Collector{
		eventRepo:  eventRepo,
		stateStore: store.New[profileState](storage, params.UserStateKeyPrefix),
	}
}
