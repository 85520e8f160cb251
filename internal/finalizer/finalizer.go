// Package finalizer implements the Finalizer (spec §4.4): binds the
// ceremony-closing beacon to a circuit's final contribution and records
// hashes of the verification key and verifier contract artifacts.
package finalizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/internal/blobstore"
	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/store"
)

// Request is one finalizeCircuit invocation (spec §4.4, §6). Auth
// (caller must be coordinator) is checked by the RPC layer upstream.
type Request struct {
	CeremonyID string
	CircuitID  string
	BucketName string
	Beacon     string
}

// Finalizer downloads and hashes a circuit's final artifacts, then seals
// the final contribution document with the ceremony beacon.
type Finalizer struct {
	Store  store.Store
	Blobs  blobstore.BlobStore
	Logger zerolog.Logger
}

// New constructs a Finalizer.
func New(s store.Store, blobs blobstore.BlobStore, logger zerolog.Logger) *Finalizer {
	return &Finalizer{Store: s, Blobs: blobs, Logger: logger.With().Str("component", "finalizer").Logger()}
}

type artifact struct {
	filename string
	path     string
	hash     string
}

// FinalizeCircuit implements spec §4.4's algorithm.
func (f *Finalizer) FinalizeCircuit(ctx context.Context, req Request) error {
	if _, err := f.Store.GetCeremony(req.CeremonyID); err != nil {
		return err
	}
	circuit, err := f.Store.GetCircuit(req.CeremonyID, req.CircuitID)
	if err != nil {
		return err
	}
	final, err := f.Store.FinalContribution(req.CeremonyID, req.CircuitID)
	if err != nil {
		return err
	}

	paths := blobstore.Paths{CircuitPrefix: circuit.Prefix}

	var vkey, verifierContract artifact
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := f.downloadAndHash(req.BucketName, paths.VerificationKey())
		if err != nil {
			return err
		}
		vkey = a
		return nil
	})
	g.Go(func() error {
		a, err := f.downloadAndHash(req.BucketName, paths.VerifierContract())
		if err != nil {
			return err
		}
		verifierContract = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return ceremony.WorkerErrorf("finalizer.FinalizeCircuit", "download/hash final artifacts: %w", err)
	}

	beaconHash := sha256.Sum256([]byte(req.Beacon))

	final.Files.VerificationKeyFilename = vkey.filename
	final.Files.VerificationKeyPath = vkey.path
	final.Files.VerificationKeyHash = vkey.hash
	final.Files.VerifierContractFilename = verifierContract.filename
	final.Files.VerifierContractPath = verifierContract.path
	final.Files.VerifierContractHash = verifierContract.hash
	final.Beacon = &ceremony.Beacon{Value: req.Beacon, Hash: hex.EncodeToString(beaconHash[:])}

	batch := f.Store.NewBatch()
	batch.UpdateContribution(final)
	return batch.Commit()
}

// downloadAndHash downloads bucket/objectPath to a temp file, blake2b-512
// hashes it, and removes the temp file. Grounded on the teacher's
// ExportKeys file-write/hash shape, inverted into download+hash.
func (f *Finalizer) downloadAndHash(bucket, objectPath string) (artifact, error) {
	local, err := f.Blobs.Download(bucket, objectPath)
	if err != nil {
		return artifact{}, err
	}
	defer os.Remove(local)

	file, err := os.Open(local)
	if err != nil {
		return artifact{}, err
	}
	defer file.Close()

	h, err := blake2b.New512(nil)
	if err != nil {
		return artifact{}, err
	}
	if _, err := io.Copy(h, file); err != nil {
		return artifact{}, err
	}

	return artifact{
		filename: path.Base(objectPath),
		path:     objectPath,
		hash:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}
