// Package verifier implements the Contribution Verifier (spec §4.2): the
// authenticated-RPC orchestrator that drives an isolated worker through a
// verification script, classifies the outcome, and atomically records it.
package verifier

import (
	"context"
	"encoding/hex"
	"io"
	"path"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/internal/blobstore"
	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/clock"
	"github.com/muridata/ceremony-coordinator/internal/store"
	"github.com/muridata/ceremony-coordinator/internal/verify"
	"github.com/muridata/ceremony-coordinator/internal/workerpool"
)

// defaultWorkerSettle and defaultOutputSettle are the conservative bounds
// spec §9 describes ("the 200-second settle and 5-second post-command
// sleep are conservative bounds substituting for a real readiness
// protocol"); tests override them via Verifier.WorkerSettle/OutputSettle.
const (
	defaultWorkerSettle = 200 * time.Second
	defaultOutputSettle = 5 * time.Second
)

// Request is one verifyContribution invocation (spec §4.2, §6).
type Request struct {
	CeremonyID    string
	CircuitID     string
	CallerID      string // contributorOrCoordinatorIdentifier
	IsCoordinator bool   // role claim checked by the RPC auth layer upstream
	BucketName    string
}

// Verifier orchestrates one verification attempt end to end.
type Verifier struct {
	Store    store.Store
	Blobs    blobstore.BlobStore
	Workers  workerpool.WorkerPool
	Clock    clock.Clock
	Software ceremony.VerificationSoftware
	Logger   zerolog.Logger

	// WorkerSettle and OutputSettle default to the spec's conservative
	// bounds; tests set them to near-zero.
	WorkerSettle time.Duration
	OutputSettle time.Duration
}

func (v *Verifier) workerSettle() time.Duration {
	if v.WorkerSettle > 0 {
		return v.WorkerSettle
	}
	return defaultWorkerSettle
}

func (v *Verifier) outputSettle() time.Duration {
	if v.OutputSettle > 0 {
		return v.OutputSettle
	}
	return defaultOutputSettle
}

// VerifyContribution implements spec §4.2's algorithm.
func (v *Verifier) VerifyContribution(ctx context.Context, req Request) error {
	start := v.Clock.NowMillis()

	cer, err := v.Store.GetCeremony(req.CeremonyID)
	if err != nil {
		return err
	}
	circuit, err := v.Store.GetCircuit(req.CeremonyID, req.CircuitID)
	if err != nil {
		return err
	}
	participant, participantErr := v.Store.GetParticipant(req.CeremonyID, req.CallerID)

	isFinalizing := cer.State == ceremony.CeremonyClosed && req.IsCoordinator
	isContributing := participantErr == nil && participant.Status == ceremony.StatusContributng

	if !isFinalizing && !isContributing {
		if participantErr != nil {
			return participantErr
		}
		return ceremony.PreconditionErrorf("verifier.VerifyContribution",
			"participant %q is not CONTRIBUTING on circuit %q and caller is not the finalizing coordinator", req.CallerID, req.CircuitID)
	}

	zkeyIndex := ceremony.FinalZkeyToken
	if !isFinalizing {
		zkeyIndex = ceremony.FormatZkeyIndex(circuit.WaitingQueue.CompletedContributions+1, circuit.IndexWidth())
	}

	paths := blobstore.Paths{CircuitPrefix: circuit.Prefix}
	zkeyPath := paths.Zkey(zkeyIndex)
	transcriptPath := paths.Transcript(req.CallerID, isFinalizing, zkeyIndex)

	_, valid := v.runWorkerScript(ctx, circuit.InstanceID, req.BucketName, zkeyPath, transcriptPath)

	contribution := ceremony.Contribution{
		ID:            zkeyIndex,
		CeremonyID:    req.CeremonyID,
		CircuitID:     req.CircuitID,
		ParticipantID: req.CallerID,
		ZkeyIndex:     zkeyIndex,
		Verification:  v.Software,
		Valid:         valid,
		LastUpdated:   v.Clock.NowMillis(),
	}

	batch := v.Store.NewBatch()

	if valid {
		contribution.Files = ceremony.ContributionFiles{
			ZkeyFilename:       path.Base(zkeyPath),
			ZkeyPath:           zkeyPath,
			TranscriptFilename: path.Base(transcriptPath),
			TranscriptPath:     transcriptPath,
		}
		if hash, hashErr := v.hashTranscript(req.BucketName, transcriptPath); hashErr == nil {
			contribution.Files.TranscriptHash = hash
		} else {
			v.Logger.Warn().Err(hashErr).Str("path", transcriptPath).Msg("verifier: transcript re-hash failed")
		}

		if isFinalizing {
			// Finalization's own verification pass does not consume a
			// waiting-queue slot or a participant.contributions entry, and
			// leaves timing statistics untouched (spec §8 scenario 5).
			batch.CreateContribution(&contribution)
		} else {
			candidate, findErr := findCandidateContribution(participant.Contributions)
			if findErr != nil {
				return findErr
			}
			contribution.ContributionTimeMs = candidate.ComputationTime

			fullContribution := participant.VerificationStartedAt - participant.ContributionStartedAt
			verifyDuration := v.Clock.NowMillis() - start
			contribution.FullContributionMs = fullContribution
			contribution.VerifyDurationMs = verifyDuration

			circuit.AvgTimings.UpdateTimings(candidate.ComputationTime, fullContribution, verifyDuration)
			circuit.RecordFullContributionSample(fullContribution)
			circuit.WaitingQueue.CompletedContributions++

			batch.PutCircuit(circuit)
			batch.CreateContribution(&contribution)
		}
	} else {
		if delErr := v.Blobs.Delete(req.BucketName, zkeyPath); delErr != nil {
			v.Logger.Warn().Err(delErr).Str("path", zkeyPath).Msg("verifier: failed to delete invalid candidate zkey")
		}
		if !isFinalizing {
			circuit.WaitingQueue.FailedContributions++
			batch.PutCircuit(circuit)
		}
		batch.CreateContribution(&contribution)
	}

	return batch.Commit()
}

// runWorkerScript performs the worker lifecycle of spec §4.2 step 4-6:
// start, settle, probe, run the verification script, stop unconditionally.
// Any failure along the way (start, probe, RunCommand, FetchOutput) is a
// WorkerError (spec §7): the contribution is classified invalid, never
// returned as an error from VerifyContribution.
func (v *Verifier) runWorkerScript(ctx context.Context, instanceID, bucket, zkeyPath, transcriptPath string) (output string, valid bool) {
	if err := v.Workers.Start(ctx, instanceID); err != nil {
		v.Logger.Warn().Err(err).Str("instance", instanceID).Msg("verifier: worker start failed")
		_ = v.Workers.Stop(ctx, instanceID)
		return "", false
	}

	select {
	case <-time.After(v.workerSettle()):
	case <-ctx.Done():
		_ = v.Workers.Stop(ctx, instanceID)
		return "", false
	}

	if running, err := v.Workers.Status(ctx, instanceID); err != nil {
		v.Logger.Warn().Err(err).Str("instance", instanceID).Msg("verifier: worker status probe failed")
		_ = v.Workers.Stop(ctx, instanceID)
		return "", false
	} else if !running {
		// Open question (b): logged only, not fatal, per spec §9.
		v.Logger.Warn().Str("instance", instanceID).Msg("verifier: worker reported not running after settle interval")
	}

	commands := []workerpool.Command{
		{Name: "download", Argv: []string{bucket, zkeyPath}},
		{Name: "ceremonyverify", Argv: []string{"verify"}},
		{Name: "upload", Argv: []string{bucket, transcriptPath}},
		{Name: "cleanup"},
	}

	commandID, err := v.Workers.RunCommand(ctx, instanceID, commands)
	if err != nil {
		v.Logger.Warn().Err(err).Str("instance", instanceID).Msg("verifier: run command failed")
		_ = v.Workers.Stop(ctx, instanceID)
		return "", false
	}

	select {
	case <-time.After(v.outputSettle()):
	case <-ctx.Done():
		_ = v.Workers.Stop(ctx, instanceID)
		return "", false
	}

	output, err = v.Workers.FetchOutput(ctx, commandID, instanceID)

	// Stop is attempted on every exit path, valid or not (spec §7).
	if stopErr := v.Workers.Stop(ctx, instanceID); stopErr != nil {
		v.Logger.Warn().Err(stopErr).Str("instance", instanceID).Msg("verifier: worker stop failed")
	}

	if err != nil {
		v.Logger.Warn().Err(err).Str("instance", instanceID).Msg("verifier: fetch output failed")
		return "", false
	}
	return output, verify.ContainsSuccessMarker(output)
}

// findCandidateContribution implements invariant I6 / spec §9's
// disambiguation rule: exactly one participant.contributions entry must
// have a hash and computation time but no attached document reference.
func findCandidateContribution(contributions []ceremony.PartialContribution) (ceremony.PartialContribution, error) {
	idx := -1
	for i, c := range contributions {
		if c.IsCandidate() {
			if idx != -1 {
				return ceremony.PartialContribution{}, ceremony.PreconditionErrorf("verifier.findCandidateContribution",
					"more than one candidate contribution entry without a document reference")
			}
			idx = i
		}
	}
	if idx == -1 {
		return ceremony.PartialContribution{}, ceremony.PreconditionErrorf("verifier.findCandidateContribution",
			"no candidate contribution entry without a document reference")
	}
	return contributions[idx], nil
}

// hashTranscript re-downloads the just-uploaded transcript and hashes it
// with blake2b-512, closing spec §9 open question (a): "hash the
// transcript after upload (by re-downloading)."
func (v *Verifier) hashTranscript(bucket, path string) (string, error) {
	r, err := v.Blobs.Open(bucket, path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	h, err := blake2b.New512(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
