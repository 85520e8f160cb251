// Package blobstore implements the object-storage side of the ceremony:
// contribution zkeys, verification transcripts, verification keys and
// verifier contracts, addressed by path keys bit-exact with spec §6 so
// contributor tooling stays compatible.
package blobstore

import "io"

// BlobStore is the object storage collaborator (spec §6): download and
// delete by path, plus upload/open for the paths this control plane itself
// produces (transcripts) or reads back to hash (vkey/verifier artifacts).
type BlobStore interface {
	// Download copies bucket/path into a local temp file and returns its
	// path. Caller is responsible for removing it.
	Download(bucket, path string) (localPath string, err error)

	// Upload copies a local file to bucket/path.
	Upload(bucket, path, localPath string) error

	// Open streams bucket/path directly, for re-hashing an uploaded
	// transcript without a second round-trip through disk beyond what the
	// local backend already requires.
	Open(bucket, path string) (io.ReadCloser, error)

	// Delete removes bucket/path. Deleting a path that does not exist is
	// not an error (mirrors idempotent object-store semantics).
	Delete(bucket, path string) error
}

// Paths mirrors spec §6's bit-exact path layout.
type Paths struct {
	// CircuitPrefix identifies the circuit within bucket paths.
	CircuitPrefix string
}

// Zkey returns the storage path for a candidate zkey, identified by its
// zkeyIndex (or the literal "final" token).
func (p Paths) Zkey(zkeyIndex string) string {
	return p.CircuitPrefix + "_" + zkeyIndex + ".zkey"
}

// VerificationKey returns the storage path for the circuit's verification key JSON.
func (p Paths) VerificationKey() string {
	return p.CircuitPrefix + "_vkey.json"
}

// VerifierContract returns the storage path for the circuit's Solidity verifier.
func (p Paths) VerifierContract() string {
	return p.CircuitPrefix + "_verifier.sol"
}

// Transcript returns the storage path (under the transcripts prefix) for a
// verification transcript. When finalizing, zkeyIndex is ignored and the
// "_final_" naming is used instead, per spec §6.
func (p Paths) Transcript(identifier string, finalizing bool, zkeyIndex string) string {
	if finalizing {
		return "transcripts/" + p.CircuitPrefix + "_" + identifier + "_final_verification_transcript.log"
	}
	return "transcripts/" + p.CircuitPrefix + "_" + zkeyIndex + "_" + identifier + "_verification_transcript.log"
}
