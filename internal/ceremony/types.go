// Package ceremony holds the data model for the trusted-setup ceremony
// control plane: ceremonies, circuits, waiting queues, participants and
// contributions, plus the helpers that keep them consistent.
package ceremony

// CeremonyState is the lifecycle state of a Ceremony.
type CeremonyState string

const (
	CeremonyScheduled CeremonyState = "SCHEDULED"
	CeremonyOpened    CeremonyState = "OPENED"
	CeremonyPaused    CeremonyState = "PAUSED"
	CeremonyClosed    CeremonyState = "CLOSED"
	CeremonyFinalized CeremonyState = "FINALIZED"
)

// ParticipantStatus is a participant's coarse lifecycle state.
type ParticipantStatus string

const (
	StatusWaiting     ParticipantStatus = "WAITING"
	StatusReady       ParticipantStatus = "READY"
	StatusContributng ParticipantStatus = "CONTRIBUTING"
	StatusContributed ParticipantStatus = "CONTRIBUTED"
	StatusDone        ParticipantStatus = "DONE"
	StatusFinalizing  ParticipantStatus = "FINALIZING"
	StatusTimedOut    ParticipantStatus = "TIMEDOUT"
)

// ContributionStep is the fine-grained phase within a single contribution.
type ContributionStep string

const (
	StepDownloading ContributionStep = "DOWNLOADING"
	StepComputing   ContributionStep = "COMPUTING"
	StepUploading   ContributionStep = "UPLOADING"
	StepVerifying   ContributionStep = "VERIFYING"
	StepCompleted   ContributionStep = "COMPLETED"
)

// Ceremony is the top-level entity a set of circuits belongs to.
type Ceremony struct {
	ID     string        `json:"id"`
	State  CeremonyState `json:"state"`
	Prefix string        `json:"prefix"`
	Title  string        `json:"title"`
}

// AvgTimings holds rolling mean timings (milliseconds) for a circuit.
// Updated only on valid contributions, via the EMA rule in UpdateTimings.
type AvgTimings struct {
	ContributionComputation int64 `json:"contributionComputation"`
	FullContribution        int64 `json:"fullContribution"`
	VerifyCloudFunction     int64 `json:"verifyCloudFunction"`
}

// update applies the "new = prev > 0 ? (prev+sample)/2 : sample" rule from
// spec DESIGN NOTES — an EMA with smoothing factor 0.5, not a true mean.
// Preserved exactly for compatibility with historical ceremony timings.
func update(prev, sample int64) int64 {
	if prev > 0 {
		return (prev + sample) / 2
	}
	return sample
}

// UpdateTimings rolls in one valid contribution's timing sample.
func (a *AvgTimings) UpdateTimings(computation, full, verify int64) {
	a.ContributionComputation = update(a.ContributionComputation, computation)
	a.FullContribution = update(a.FullContribution, full)
	a.VerifyCloudFunction = update(a.VerifyCloudFunction, verify)
}

// WaitingQueue is the ordered per-circuit queue of contributors.
type WaitingQueue struct {
	Contributors           []string `json:"contributors"`
	CurrentContributor     string   `json:"currentContributor"`
	CompletedContributions int      `json:"completedContributions"`
	FailedContributions    int      `json:"failedContributions"`
}

// Head returns the current head of the queue, or "" if empty.
func (q *WaitingQueue) Head() string {
	if len(q.Contributors) == 0 {
		return ""
	}
	return q.Contributors[0]
}

// IsEmpty reports whether nobody holds or awaits the slot (Scenario A precondition).
func (q *WaitingQueue) IsEmpty() bool {
	return q.CurrentContributor == "" && len(q.Contributors) == 0
}

// Append adds a participant to the tail of the queue.
func (q *WaitingQueue) Append(participantID string) {
	q.Contributors = append(q.Contributors, participantID)
}

// PromoteNext removes the current head and, if the queue is non-empty
// afterwards, returns the new head so the caller can promote it. Caller
// must already have confirmed head == the participant who just finished.
func (q *WaitingQueue) PromoteNext() (next string, ok bool) {
	if len(q.Contributors) == 0 {
		q.CurrentContributor = ""
		return "", false
	}
	q.Contributors = q.Contributors[1:]
	if len(q.Contributors) == 0 {
		q.CurrentContributor = ""
		return "", false
	}
	q.CurrentContributor = q.Contributors[0]
	return q.CurrentContributor, true
}

// Circuit is one circuit within a ceremony.
type Circuit struct {
	CeremonyID       string       `json:"ceremonyId"`
	ID               string       `json:"id"`
	SequencePosition int          `json:"sequencePosition"`
	Prefix           string       `json:"prefix"`
	WaitingQueue     WaitingQueue `json:"waitingQueue"`
	AvgTimings       AvgTimings   `json:"avgTimings"`
	Files            []string     `json:"files"`
	InstanceID       string       `json:"instanceId"`

	// GenesisIndexWidth is the zero-padded width used for zkeyIndex values
	// on this circuit (e.g. 5 for "00000"), per invariant I5.
	GenesisIndexWidth int `json:"genesisIndexWidth"`

	// RecentFullContributionsMs retains the last N raw fullContribution
	// samples (ms) beyond the required EMA, for diagnostics; see
	// internal/ceremony/timinghistory.go.
	RecentFullContributionsMs []int64 `json:"recentFullContributionsMs,omitempty"`
}

// PartialContribution is an entry in Participant.Contributions before the
// Refresher has attached the created contribution document's id.
type PartialContribution struct {
	Hash            string `json:"hash,omitempty"`
	ComputationTime int64  `json:"computationTime,omitempty"`
	Doc             string `json:"doc,omitempty"`
}

// HasDocRef reports whether this entry has already been attached to a
// created contribution document.
func (p PartialContribution) HasDocRef() bool { return p.Doc != "" }

// IsCandidate reports whether this entry is eligible to receive a doc
// reference: it has both a hash and a computation time, but no doc yet.
func (p PartialContribution) IsCandidate() bool {
	return p.Hash != "" && p.ComputationTime != 0 && p.Doc == ""
}

// Participant tracks one contributor's progress through a ceremony.
type Participant struct {
	CeremonyID            string                `json:"ceremonyId"`
	UserID                string                `json:"userId"`
	Status                ParticipantStatus     `json:"status"`
	Step                  ContributionStep      `json:"contributionStep"`
	Progress              int                   `json:"contributionProgress"`
	Contributions         []PartialContribution `json:"contributions"`
	ContributionStartedAt int64                 `json:"contributionStartedAt"`
	VerificationStartedAt int64                 `json:"verificationStartedAt"`
	LastUpdated           int64                 `json:"lastUpdated"`
}

// VerificationSoftware identifies the verification tool used for a contribution.
type VerificationSoftware struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	CommitHash string `json:"commitHash"`
}

// ContributionFiles names and locates a contribution's artifacts.
type ContributionFiles struct {
	TranscriptFilename string `json:"transcriptFilename"`
	TranscriptPath     string `json:"transcriptStoragePath"`
	TranscriptHash     string `json:"transcriptHash,omitempty"`
	ZkeyFilename       string `json:"zkeyFilename"`
	ZkeyPath           string `json:"zkeyStoragePath"`

	// Populated only by the Finalizer, only on the final contribution.
	VerificationKeyFilename  string `json:"verificationKeyFilename,omitempty"`
	VerificationKeyPath      string `json:"verificationKeyStoragePath,omitempty"`
	VerificationKeyHash      string `json:"verificationKeyHash,omitempty"`
	VerifierContractFilename string `json:"verifierContractFilename,omitempty"`
	VerifierContractPath     string `json:"verifierContractStoragePath,omitempty"`
	VerifierContractHash     string `json:"verifierContractHash,omitempty"`
}

// Beacon records the ceremony-closing public randomness for a final contribution.
type Beacon struct {
	Value string `json:"value"`
	Hash  string `json:"hash"`
}

// Contribution is one verification attempt's outcome.
type Contribution struct {
	ID                  string               `json:"id"`
	CeremonyID          string               `json:"ceremonyId"`
	CircuitID           string               `json:"circuitId"`
	ParticipantID       string               `json:"participantId"`
	ZkeyIndex           string               `json:"zkeyIndex"`
	Valid               bool                 `json:"valid"`
	Files               ContributionFiles    `json:"files"`
	Verification        VerificationSoftware `json:"verificationSoftware"`
	ContributionTimeMs  int64                `json:"contributionComputationTime,omitempty"`
	FullContributionMs  int64                `json:"fullContributionTime,omitempty"`
	VerifyDurationMs    int64                `json:"verifyCloudFunctionTime,omitempty"`
	Beacon              *Beacon              `json:"beacon,omitempty"`
	LastUpdated         int64                `json:"lastUpdated"`
}

// IsFinal reports whether this contribution used the literal "final" token.
func (c *Contribution) IsFinal() bool { return c.ZkeyIndex == FinalZkeyToken }
