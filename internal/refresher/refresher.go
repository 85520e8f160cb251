// Package refresher implements the post-verification refresher (spec
// §4.3): on each newly created contribution document, attach its id to the
// matching partial entry in the participant's record and advance the
// participant towards its next circuit or DONE.
package refresher

import (
	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/clock"
	"github.com/muridata/ceremony-coordinator/internal/store"
)

// Refresher reacts to Store contribution-create triggers.
type Refresher struct {
	Store  store.Store
	Clock  clock.Clock
	Logger zerolog.Logger
}

// New constructs a Refresher. Register its HandleContributionCreated with
// store.WatchContributionCreates to wire it live.
func New(s store.Store, c clock.Clock, logger zerolog.Logger) *Refresher {
	return &Refresher{Store: s, Clock: c, Logger: logger.With().Str("component", "refresher").Logger()}
}

// HandleContributionCreated is a store.ContributionCreateHandler.
func (r *Refresher) HandleContributionCreated(c ceremony.Contribution) error {
	participant, err := r.Store.GetParticipant(c.CeremonyID, c.ParticipantID)
	if err != nil {
		r.Logger.Error().Err(err).Str("ceremony", c.CeremonyID).Str("participant", c.ParticipantID).Msg("refresher: participant lookup failed")
		return err
	}

	idx, findErr := findUnattachedCandidate(participant.Contributions)
	if findErr != nil {
		r.Logger.Error().Err(findErr).Str("contribution", c.ID).Msg("refresher: candidate lookup failed")
		return findErr
	}
	participant.Contributions[idx].Doc = c.ID

	now := r.Clock.NowMillis()

	if participant.Status != ceremony.StatusFinalizing {
		circuits, err := r.Store.ListCircuits(c.CeremonyID)
		if err != nil {
			r.Logger.Error().Err(err).Str("ceremony", c.CeremonyID).Msg("refresher: list circuits failed")
			return err
		}
		if participant.Progress+1 > len(circuits) {
			participant.Status = ceremony.StatusDone
		} else {
			participant.Status = ceremony.StatusContributed
		}
		participant.Step = ceremony.StepCompleted
		participant.ContributionStartedAt = 0
		participant.VerificationStartedAt = 0
	}
	participant.LastUpdated = now

	batch := r.Store.NewBatch()
	batch.PutParticipant(participant)
	return batch.Commit()
}

// findUnattachedCandidate implements invariant I6: exactly one partial
// contribution entry has hash+computationTime but no doc reference.
func findUnattachedCandidate(contributions []ceremony.PartialContribution) (int, error) {
	idx := -1
	for i, c := range contributions {
		if c.IsCandidate() {
			if idx != -1 {
				return -1, ceremony.PreconditionErrorf("refresher.findUnattachedCandidate",
					"more than one candidate contribution entry without a document reference")
			}
			idx = i
		}
	}
	if idx == -1 {
		return -1, ceremony.PreconditionErrorf("refresher.findUnattachedCandidate",
			"no candidate contribution entry without a document reference")
	}
	return idx, nil
}
