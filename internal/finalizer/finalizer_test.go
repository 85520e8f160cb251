package finalizer_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/internal/blobstore"
	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/finalizer"
	"github.com/muridata/ceremony-coordinator/internal/store"
)

func TestFinalizeCircuit(t *testing.T) {
	s := store.NewMemStore(nil)
	b := s.NewBatch()
	b.PutCeremony(&ceremony.Ceremony{ID: "cer1", State: ceremony.CeremonyClosed})
	b.PutCircuit(&ceremony.Circuit{CeremonyID: "cer1", ID: "circ0", Prefix: "poi"})
	b.CreateContribution(&ceremony.Contribution{
		ID: "final", CeremonyID: "cer1", CircuitID: "circ0", ZkeyIndex: "final", Valid: true,
	})
	if err := b.Commit(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	blobs, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	vkeyTmp := t.TempDir() + "/vkey.json"
	if err := os.WriteFile(vkeyTmp, []byte(`{"protocol":"groth16"}`), 0o644); err != nil {
		t.Fatalf("write vkey: %v", err)
	}
	if err := blobs.Upload("bucket1", "poi_vkey.json", vkeyTmp); err != nil {
		t.Fatalf("upload vkey: %v", err)
	}
	verifierTmp := t.TempDir() + "/verifier.sol"
	if err := os.WriteFile(verifierTmp, []byte("pragma solidity ^0.8.0;"), 0o644); err != nil {
		t.Fatalf("write verifier: %v", err)
	}
	if err := blobs.Upload("bucket1", "poi_verifier.sol", verifierTmp); err != nil {
		t.Fatalf("upload verifier: %v", err)
	}

	fz := finalizer.New(s, blobs, zerolog.Nop())
	req := finalizer.Request{CeremonyID: "cer1", CircuitID: "circ0", BucketName: "bucket1", Beacon: "beacon-xyz"}
	if err := fz.FinalizeCircuit(context.Background(), req); err != nil {
		t.Fatalf("FinalizeCircuit: %v", err)
	}

	final, err := s.FinalContribution("cer1", "circ0")
	if err != nil {
		t.Fatalf("FinalContribution: %v", err)
	}
	if final.Files.VerificationKeyFilename != "poi_vkey.json" {
		t.Fatalf("unexpected vkey filename: %q", final.Files.VerificationKeyFilename)
	}
	if final.Files.VerifierContractFilename != "poi_verifier.sol" {
		t.Fatalf("unexpected verifier filename: %q", final.Files.VerifierContractFilename)
	}
	if final.Files.VerificationKeyHash == "" || final.Files.VerifierContractHash == "" {
		t.Fatalf("expected both artifact hashes to be populated: %+v", final.Files)
	}
	if final.Beacon == nil || final.Beacon.Value != "beacon-xyz" {
		t.Fatalf("unexpected beacon: %+v", final.Beacon)
	}
	wantHash := sha256.Sum256([]byte("beacon-xyz"))
	if final.Beacon.Hash != hex.EncodeToString(wantHash[:]) {
		t.Fatalf("beacon hash mismatch: got %s", final.Beacon.Hash)
	}
}
