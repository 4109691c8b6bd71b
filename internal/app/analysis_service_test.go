package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"transit_notification_engine/internal/domain/aspect"
	"transit_notification_engine/internal/domain/chart"
	"transit_notification_engine/internal/domain/ephemeris"
	"transit_notification_engine/internal/domain/scoring"
	"transit_notification_engine/internal/domain/transit"
	"transit_notification_engine/internal/infra/cache"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryChartStore struct {
	points   []chart.ReferencePoint
	settings *chart.Settings
}

func (s *memoryChartStore) ReferencePoints(ctx context.Context, userID int64) ([]chart.ReferencePoint, error) {
	if len(s.points) == 0 {
		return nil, chart.ErrChartNotFound
	}
	return s.points, nil
}

func (s *memoryChartStore) Settings(ctx context.Context, userID int64) (*chart.Settings, error) {
	return s.settings, nil
}

func (s *memoryChartStore) MonitoredUserIDs(ctx context.Context) ([]int64, error) {
	return []int64{s.settings.UserID}, nil
}

type memoryPositions struct {
	mu         sync.Mutex
	longitudes map[ephemeris.BodyID]float64
	calls      int
}

func (p *memoryPositions) Get(ctx context.Context, body ephemeris.BodyID, ts time.Time) (ephemeris.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	lon, ok := p.longitudes[body]
	if !ok {
		return ephemeris.Position{}, ephemeris.ErrProviderUnavailable
	}
	return ephemeris.Position{Body: body, Timestamp: ts, Longitude: lon}, nil
}

type memoryTransitRepo struct {
	mu       sync.Mutex
	states   map[transit.Key]*transit.State
	nextID   int64
	archived int
}

func newMemoryTransitRepo() *memoryTransitRepo {
	return &memoryTransitRepo{states: make(map[transit.Key]*transit.State)}
}

func (r *memoryTransitRepo) Get(ctx context.Context, key transit.Key) (*transit.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[key]
	if !ok {
		return nil, errors.New("state not found")
	}
	return st, nil
}

func (r *memoryTransitRepo) Create(ctx context.Context, st *transit.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	st.ID = r.nextID
	st.CreatedAt = time.Now()
	r.states[st.Key()] = st
	return nil
}

func (r *memoryTransitRepo) Update(ctx context.Context, st *transit.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st.UpdatedAt = time.Now()
	r.states[st.Key()] = st
	return nil
}

func (r *memoryTransitRepo) list(userID int64, activeOnly bool) []*transit.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*transit.State
	for _, st := range r.states {
		if st.UserID != userID {
			continue
		}
		if activeOnly && !st.Active() {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Moving != out[j].Moving {
			return out[i].Moving < out[j].Moving
		}
		if out[i].Reference != out[j].Reference {
			return out[i].Reference < out[j].Reference
		}
		return out[i].Aspect < out[j].Aspect
	})
	return out
}

func (r *memoryTransitRepo) ListByUser(ctx context.Context, userID int64) ([]*transit.State, error) {
	return r.list(userID, false), nil
}

func (r *memoryTransitRepo) ListActiveByUser(ctx context.Context, userID int64) ([]*transit.State, error) {
	return r.list(userID, true), nil
}

func (r *memoryTransitRepo) ArchiveEpisode(ctx context.Context, st *transit.State, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived++
	st.EpisodeID = uuid.Nil
	st.FirstEnteredAt.Valid = false
	st.ExactAt.Valid = false
	return nil
}

func (r *memoryTransitRepo) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type analysisFixture struct {
	service   *AnalysisService
	charts    *memoryChartStore
	positions *memoryPositions
	transits  *memoryTransitRepo
	alerts    *memoryAlertRepo
}

func newAnalysisFixture(t *testing.T, longitudes map[ephemeris.BodyID]float64, settings *chart.Settings) *analysisFixture {
	t.Helper()

	charts := &memoryChartStore{
		points: []chart.ReferencePoint{
			{Body: ephemeris.Body{ID: ephemeris.BodySun, Category: ephemeris.CategoryReference}, Longitude: 0},
		},
		settings: settings,
	}
	positions := &memoryPositions{longitudes: longitudes}
	transits := newMemoryTransitRepo()
	alertRepo := &memoryAlertRepo{}
	alerts := NewAlertService(alertRepo, nil, quietLogger(), time.Second, 10)

	svc, err := NewAnalysisService(
		charts,
		positions,
		cache.NewAnalysisCache(16, time.Minute),
		transits,
		alerts,
		quietLogger(),
		scoring.DefaultWeights,
		aspect.DefaultExactnessEpsilon,
		5*time.Minute,
		100*time.Millisecond,
	)
	require.NoError(t, err)
	return &analysisFixture{service: svc, charts: charts, positions: positions, transits: transits, alerts: alertRepo}
}

func enabledSettings(userID int64) *chart.Settings {
	return &chart.Settings{UserID: userID, Enabled: true, AlertCeilingPerHour: 10}
}

func TestEvaluateUserDetectsExactTransitAndAlertsOnce(t *testing.T) {
	// Transiting sun at 89.95 squares the natal sun at 0 within the exactness
	// epsilon; every other body is unavailable this tick.
	fx := newAnalysisFixture(t, map[ephemeris.BodyID]float64{ephemeris.BodySun: 89.95}, enabledSettings(7))
	ts := time.Unix(1700000000, 0)

	result, err := fx.service.EvaluateUser(context.Background(), 7, ts)
	require.NoError(t, err)

	require.Len(t, result.Events, 1)
	assert.Equal(t, transit.TransitionReachedExact, result.Events[0].Kind)
	assert.Equal(t, len(ephemeris.MovingBodies)-1, result.SkippedPairs)

	active, err := fx.service.ActiveTransits(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, transit.PhaseExact, active[0].Phase)

	// Exactly one alert record for the transition.
	assert.Len(t, fx.alerts.records, 1)
	assert.Equal(t, transit.TransitionReachedExact, fx.alerts.records[0].Kind)
	assert.Positive(t, fx.alerts.records[0].Score)
}

func TestEvaluateUserCacheHitDoesNotReAlert(t *testing.T) {
	fx := newAnalysisFixture(t, map[ephemeris.BodyID]float64{ephemeris.BodySun: 89.95}, enabledSettings(7))
	ts := time.Unix(1700000000, 0)

	first, err := fx.service.EvaluateUser(context.Background(), 7, ts)
	require.NoError(t, err)
	callsAfterFirst := fx.positions.calls

	// Same bucket: memoized result, no new provider calls, no new alerts.
	second, err := fx.service.EvaluateUser(context.Background(), 7, ts.Add(30*time.Second))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, callsAfterFirst, fx.positions.calls)
	assert.Len(t, fx.alerts.records, 1)
}

func TestEvaluateUserDisabledMonitoring(t *testing.T) {
	settings := enabledSettings(7)
	settings.Enabled = false
	fx := newAnalysisFixture(t, map[ephemeris.BodyID]float64{ephemeris.BodySun: 89.95}, settings)

	_, err := fx.service.EvaluateUser(context.Background(), 7, time.Unix(1700000000, 0))
	assert.ErrorIs(t, err, ErrMonitoringDisabled)
}

func TestEvaluateUserRejectsZeroTimestamp(t *testing.T) {
	fx := newAnalysisFixture(t, nil, enabledSettings(7))
	_, err := fx.service.EvaluateUser(context.Background(), 7, time.Time{})
	assert.ErrorIs(t, err, ephemeris.ErrInvalidTimestamp)
}

func TestEvaluateUserLifecycleAcrossBuckets(t *testing.T) {
	settings := enabledSettings(7)
	settings.OrbOverrides = map[aspect.Aspect]float64{aspect.Square: 1.0}
	fx := newAnalysisFixture(t, map[ephemeris.BodyID]float64{ephemeris.BodyMars: 90.5}, settings)

	t0 := time.Unix(1700000000, 0).Truncate(5 * time.Minute)

	// Tick 1: mars 0.5 degrees from the exact square, inside the tight orb.
	result, err := fx.service.EvaluateUser(context.Background(), 7, t0)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, transit.TransitionEnteredApproaching, result.Events[0].Kind)

	// Tick 2, next bucket: mars moved out of orb, the episode closes.
	fx.positions.mu.Lock()
	fx.positions.longitudes[ephemeris.BodyMars] = 92.5
	fx.positions.mu.Unlock()

	result, err = fx.service.EvaluateUser(context.Background(), 7, t0.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, transit.TransitionReturnedInactive, result.Events[0].Kind)
	assert.Equal(t, 1, fx.transits.archived)

	active, err := fx.service.ActiveTransits(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestEvaluateUserCancelledTickPersistsNothing(t *testing.T) {
	settings := enabledSettings(7)
	settings.OrbOverrides = map[aspect.Aspect]float64{aspect.Square: 1.0}
	fx := newAnalysisFixture(t, map[ephemeris.BodyID]float64{ephemeris.BodyMars: 90.5}, settings)
	ts := time.Unix(1700000000, 0)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fx.service.EvaluateUser(cancelled, 7, ts)
	require.ErrorIs(t, err, context.Canceled)

	// The observed transition must not have become durable without its alert.
	states, err := fx.transits.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, states)
	assert.Empty(t, fx.alerts.records)

	// Retrying the same bucket re-observes the transition and alerts it.
	result, err := fx.service.EvaluateUser(context.Background(), 7, ts)
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, transit.TransitionEnteredApproaching, result.Events[0].Kind)
	require.Len(t, fx.alerts.records, 1)
	assert.Equal(t, transit.TransitionEnteredApproaching, fx.alerts.records[0].Kind)
}

func TestEvaluateUserProviderOutageSkipsPairsWithoutEvents(t *testing.T) {
	fx := newAnalysisFixture(t, map[ephemeris.BodyID]float64{}, enabledSettings(7))

	result, err := fx.service.EvaluateUser(context.Background(), 7, time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Equal(t, len(ephemeris.MovingBodies), result.SkippedPairs)
	assert.Empty(t, fx.alerts.records)
}
