// Package coordinator implements the queue coordinator (spec §4.1): a
// participant-document trigger handler that promotes contributors through
// per-circuit waiting queues, preserving invariants I1, I2 and I4.
package coordinator

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/clock"
	"github.com/muridata/ceremony-coordinator/internal/store"
)

// Coordinator reacts to Store participant-update triggers.
type Coordinator struct {
	Store  store.Store
	Clock  clock.Clock
	Logger zerolog.Logger
}

// New constructs a Coordinator. Register its HandleParticipantUpdate with
// store.WatchParticipantUpdates to wire it live.
func New(s store.Store, c clock.Clock, logger zerolog.Logger) *Coordinator {
	return &Coordinator{Store: s, Clock: c, Logger: logger.With().Str("component", "coordinator").Logger()}
}

// event classifies a participant before/after transition per spec §4.1.
type event int

const (
	eventNone event = iota
	eventReadyForFirst
	eventReadyForNext
	eventResumingAfterTimeout
	eventJustCompletedContribution
	eventJustCompletedEverything
)

func classify(before, after ceremony.Participant) event {
	switch {
	case after.Status == ceremony.StatusReady && before.Progress == 0:
		return eventReadyForFirst
	case after.Status == ceremony.StatusReady && after.Progress == before.Progress+1 && before.Progress != 0:
		return eventReadyForNext
	case after.Status == ceremony.StatusReady && after.Progress == before.Progress:
		return eventResumingAfterTimeout
	case before.Status == ceremony.StatusContributng && before.Step == ceremony.StepVerifying &&
		after.Status == ceremony.StatusContributed && after.Step == ceremony.StepCompleted && after.Progress == before.Progress:
		return eventJustCompletedContribution
	case after.Status == ceremony.StatusDone && before.Status != ceremony.StatusDone:
		return eventJustCompletedEverything
	default:
		return eventNone
	}
}

// HandleParticipantUpdate is a store.ParticipantUpdateHandler. Per spec §4.1
// its errors are logged, not propagated as a crash: it logs its own failures,
// and the caller (the Store's trigger dispatch) discards the returned error.
func (co *Coordinator) HandleParticipantUpdate(before, after ceremony.Participant) error {
	ev := classify(before, after)
	if ev == eventNone {
		return nil
	}

	var position int
	switch ev {
	case eventReadyForFirst, eventReadyForNext, eventResumingAfterTimeout:
		position = after.Progress - 1
	case eventJustCompletedContribution, eventJustCompletedEverything:
		position = before.Progress - 1
	}

	circuit, err := co.circuitAtPosition(after.CeremonyID, position)
	if err != nil {
		co.Logger.Error().Err(err).Str("ceremony", after.CeremonyID).Int("position", position).Msg("coordinator: circuit lookup failed")
		return err
	}

	now := co.Clock.NowMillis()
	batch := co.Store.NewBatch()

	switch ev {
	case eventReadyForFirst, eventReadyForNext, eventResumingAfterTimeout:
		p := after
		singleParticipantCoordinate(&circuit.WaitingQueue, &p, now)
		batch.PutCircuit(circuit).PutParticipant(&p)

	case eventJustCompletedContribution, eventJustCompletedEverything:
		nextUserID, ok := multiParticipantCoordinate(&circuit.WaitingQueue, after.UserID)
		batch.PutCircuit(circuit)
		if ok {
			next, err := co.Store.GetParticipant(after.CeremonyID, nextUserID)
			if err != nil {
				co.Logger.Error().Err(err).Str("ceremony", after.CeremonyID).Str("userId", nextUserID).Msg("coordinator: promoted participant lookup failed")
				return err
			}
			next.Status = ceremony.StatusContributng
			next.Step = ceremony.StepDownloading
			next.ContributionStartedAt = now
			next.LastUpdated = now
			batch.PutParticipant(next)
		}
	}

	if err := batch.Commit(); err != nil {
		co.Logger.Error().Err(err).Str("ceremony", after.CeremonyID).Msg("coordinator: commit failed")
		return err
	}
	return nil
}

// singleParticipantCoordinate implements Scenarios A, A' and B (spec §4.1).
// Written so that re-applying it against a queue already reflecting a prior
// application of the same (before, after) pair is a no-op (P7): the
// CurrentContributor == p branch covers both genuine resumption and replay
// of an already-applied Scenario A.
func singleParticipantCoordinate(q *ceremony.WaitingQueue, p *ceremony.Participant, now int64) {
	switch {
	case q.CurrentContributor == p.UserID:
		// Scenario A', or a replay of an already-applied Scenario A.
		p.Status = ceremony.StatusContributng
		p.Step = ceremony.StepDownloading
		if p.ContributionStartedAt == 0 {
			p.ContributionStartedAt = now
		}
	case q.IsEmpty():
		// Scenario A.
		q.CurrentContributor = p.UserID
		q.Append(p.UserID)
		p.Status = ceremony.StatusContributng
		p.Step = ceremony.StepDownloading
		p.ContributionStartedAt = now
	default:
		// Scenario B.
		if !contains(q.Contributors, p.UserID) {
			q.Append(p.UserID)
		}
		p.Status = ceremony.StatusWaiting
		p.ContributionStartedAt = 0
	}
	p.LastUpdated = now
}

// multiParticipantCoordinate implements the removal-and-promotion step.
// Idempotent: if finishedUserID is no longer the head (already promoted by
// a prior application of this same event), it is a no-op.
func multiParticipantCoordinate(q *ceremony.WaitingQueue, finishedUserID string) (nextUserID string, ok bool) {
	if q.Head() != finishedUserID {
		return "", false
	}
	return q.PromoteNext()
}

func (co *Coordinator) circuitAtPosition(ceremonyID string, position int) (*ceremony.Circuit, error) {
	circuits, err := co.Store.ListCircuits(ceremonyID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: list circuits: %w", err)
	}
	for _, c := range circuits {
		if c.SequencePosition == position {
			return c, nil
		}
	}
	return nil, ceremony.NotFoundErrorf("coordinator", "no circuit at sequence position %d in ceremony %q", position, ceremonyID)
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
