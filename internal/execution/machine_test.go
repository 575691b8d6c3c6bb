package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleet-tracking/internal/domain"
)

func TestApplyTransitionTable(t *testing.T) {
	tests := []struct {
		name      string
		current   domain.JobStatus
		eventType domain.EventType
		want      domain.JobStatus
	}{
		{"route started from inactive", domain.JobInactive, domain.RouteStarted, domain.JobEnRoute},
		{"route started from active", domain.JobActive, domain.RouteStarted, domain.JobEnRoute},
		{"arrived from en route", domain.JobEnRoute, domain.ArrivedAtStop, domain.JobAtStop},
		{"departed from at stop", domain.JobAtStop, domain.DepartedStop, domain.JobEnRoute},
		{"delay from en route", domain.JobEnRoute, domain.DelayReported, domain.JobDelayed},
		{"delay from at stop", domain.JobAtStop, domain.DelayReported, domain.JobDelayed},
		{"completed from en route", domain.JobEnRoute, domain.RouteCompleted, domain.JobCompleted},
		{"completed from at stop", domain.JobAtStop, domain.RouteCompleted, domain.JobCompleted},
		{"completed from delayed", domain.JobDelayed, domain.RouteCompleted, domain.JobCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Apply(tt.current, tt.eventType, nil)
			require.NoError(t, err)
			require.True(t, out.StatusChanged)
			require.Equal(t, tt.want, out.NewStatus)
		})
	}
}

// Every (status, event) pair absent from the table must be rejected as a
// state conflict and nothing else.
func TestApplyRejectsEveryPairOutsideTheTable(t *testing.T) {
	tableEvents := []domain.EventType{
		domain.RouteStarted, domain.ArrivedAtStop, domain.DepartedStop,
		domain.DelayReported, domain.RouteCompleted,
	}
	for _, status := range allStatuses {
		for _, eventType := range tableEvents {
			allowed := false
			for _, from := range transitions[eventType].from {
				if from == status {
					allowed = true
				}
			}
			if allowed {
				continue
			}
			_, err := Apply(status, eventType, nil)
			require.ErrorIs(t, err, domain.ErrStateConflict, "status=%s event=%s", status, eventType)
		}
	}
}

func TestApplyCancelAllowedFromAnyStateExceptCompleted(t *testing.T) {
	for _, status := range allStatuses {
		out, err := Apply(status, domain.RouteCancelled, nil)
		if status == domain.JobCompleted {
			require.ErrorIs(t, err, domain.ErrStateConflict)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, domain.JobInactive, out.NewStatus)
		require.True(t, out.Reset)
	}
}

func TestApplyProofCapturedNeverChangesStatus(t *testing.T) {
	for _, status := range allStatuses {
		out, err := Apply(status, domain.ProofCaptured, nil)
		require.NoError(t, err)
		require.False(t, out.StatusChanged)
		require.Equal(t, status, out.NewStatus)
	}
}

func TestApplySupervisorOverride(t *testing.T) {
	t.Run("forces any target and flags review", func(t *testing.T) {
		out, err := Apply(domain.JobCompleted, domain.SupervisorOverride, map[string]string{
			MetadataActor:        "ops:marta",
			MetadataTargetStatus: string(domain.JobEnRoute),
		})
		require.NoError(t, err)
		require.Equal(t, domain.JobEnRoute, out.NewStatus)
		require.True(t, out.NeedsReview)
		require.True(t, out.StatusChanged)
	})

	t.Run("requires actor", func(t *testing.T) {
		_, err := Apply(domain.JobEnRoute, domain.SupervisorOverride, map[string]string{
			MetadataTargetStatus: string(domain.JobAtStop),
		})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("requires a valid target status", func(t *testing.T) {
		_, err := Apply(domain.JobEnRoute, domain.SupervisorOverride, map[string]string{
			MetadataActor:        "ops:marta",
			MetadataTargetStatus: "TELEPORTED",
		})
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestApplyDerivedEffects(t *testing.T) {
	out, err := Apply(domain.JobInactive, domain.RouteStarted, nil)
	require.NoError(t, err)
	require.True(t, out.SetStart)

	out, err = Apply(domain.JobEnRoute, domain.ArrivedAtStop, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.StopAdvance)

	out, err = Apply(domain.JobDelayed, domain.RouteCompleted, nil)
	require.NoError(t, err)
	require.True(t, out.SetEnd)
}

func TestApplyUnknownEventType(t *testing.T) {
	_, err := Apply(domain.JobInactive, domain.EventType("WARP_DRIVE"), nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestImplausible(t *testing.T) {
	almaty := domain.Location{Lat: 43.238949, Lng: 76.889709}
	astana := domain.Location{Lat: 51.169392, Lng: 71.449074}
	nearby := domain.Location{Lat: 43.240000, Lng: 76.890000}
	now := time.Now()

	// ~960km in ten minutes is not a truck.
	require.True(t, Implausible(almaty, astana, now, now.Add(10*time.Minute), 180))
	// Same trip over eight hours is fine.
	require.False(t, Implausible(almaty, astana, now, now.Add(8*time.Hour), 180))
	// Small moves are never flagged, even with a clock glitch.
	require.False(t, Implausible(almaty, nearby, now, now, 180))
	// A real jump with a non-advancing clock is flagged.
	require.True(t, Implausible(almaty, astana, now, now, 180))
}
