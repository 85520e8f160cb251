// Command ceremonyctl is the operator CLI for the ceremony control plane:
// seed a ceremony and its circuits, inspect a circuit's waiting queue, and
// trigger finalizeCircuit. It talks to the Store and blob store directly,
// with no RPC round trip.
//
// Usage:
//
//	ceremonyctl seed-ceremony CEREMONY_ID PREFIX TITLE
//	ceremonyctl seed-circuit  CEREMONY_ID CIRCUIT_ID POSITION PREFIX
//	ceremonyctl queue         CEREMONY_ID CIRCUIT_ID
//	ceremonyctl finalize      CEREMONY_ID CIRCUIT_ID BUCKET BEACON
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/config"
	"github.com/muridata/ceremony-coordinator/internal/blobstore"
	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/finalizer"
	"github.com/muridata/ceremony-coordinator/internal/obs"
	"github.com/muridata/ceremony-coordinator/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	logger := obs.NewCLILogger()
	cfg := config.LoadServerConfig()

	wal, err := os.OpenFile(cfg.WALPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("ceremonyctl: open WAL %q: %v", cfg.WALPath, err)
	}
	defer wal.Close()
	s := store.NewMemStore(wal)

	switch os.Args[1] {
	case "seed-ceremony":
		if len(os.Args) != 5 {
			usage()
		}
		seedCeremony(s, os.Args[2], os.Args[3], os.Args[4])
	case "seed-circuit":
		if len(os.Args) != 6 {
			usage()
		}
		seedCircuit(s, os.Args[2], os.Args[3], os.Args[4], os.Args[5])
	case "queue":
		if len(os.Args) != 4 {
			usage()
		}
		printQueue(s, os.Args[2], os.Args[3])
	case "finalize":
		if len(os.Args) != 6 {
			usage()
		}
		runFinalize(s, cfg, logger, os.Args[2], os.Args[3], os.Args[4], os.Args[5])
	default:
		usage()
	}
}

func seedCeremony(s store.Store, id, prefix, title string) {
	b := s.NewBatch()
	b.PutCeremony(&ceremony.Ceremony{ID: id, State: ceremony.CeremonyScheduled, Prefix: prefix, Title: title})
	if err := b.Commit(); err != nil {
		log.Fatalf("ceremonyctl: seed-ceremony: %v", err)
	}
	fmt.Printf("ceremony %q created (SCHEDULED)\n", id)
}

func seedCircuit(s store.Store, ceremonyID, circuitID, positionStr, prefix string) {
	position, err := strconv.Atoi(positionStr)
	if err != nil {
		log.Fatalf("ceremonyctl: seed-circuit: POSITION must be an integer: %v", err)
	}
	b := s.NewBatch()
	b.PutCircuit(&ceremony.Circuit{
		CeremonyID: ceremonyID, ID: circuitID, SequencePosition: position, Prefix: prefix,
	})
	if err := b.Commit(); err != nil {
		log.Fatalf("ceremonyctl: seed-circuit: %v", err)
	}
	fmt.Printf("circuit %q created in ceremony %q at position %d\n", circuitID, ceremonyID, position)
}

func printQueue(s store.Store, ceremonyID, circuitID string) {
	circuit, err := s.GetCircuit(ceremonyID, circuitID)
	if err != nil {
		log.Fatalf("ceremonyctl: queue: %v", err)
	}
	q := circuit.WaitingQueue
	fmt.Printf("current contributor: %s\n", q.CurrentContributor)
	fmt.Printf("waiting (%d): %v\n", len(q.Contributors), q.Contributors)
	fmt.Printf("completed: %d, failed: %d\n", q.CompletedContributions, q.FailedContributions)
}

func runFinalize(s store.Store, cfg config.ServerConfig, logger zerolog.Logger, ceremonyID, circuitID, bucket, beacon string) {
	blobs, err := blobstore.NewLocal(cfg.BlobRoot)
	if err != nil {
		log.Fatalf("ceremonyctl: finalize: %v", err)
	}
	fz := finalizer.New(s, blobs, logger)
	req := finalizer.Request{CeremonyID: ceremonyID, CircuitID: circuitID, BucketName: bucket, Beacon: beacon}
	if err := fz.FinalizeCircuit(context.Background(), req); err != nil {
		log.Fatalf("ceremonyctl: finalize: %v", err)
	}
	fmt.Printf("circuit %q finalized with beacon %q\n", circuitID, beacon)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  ceremonyctl seed-ceremony CEREMONY_ID PREFIX TITLE
  ceremonyctl seed-circuit  CEREMONY_ID CIRCUIT_ID POSITION PREFIX
  ceremonyctl queue         CEREMONY_ID CIRCUIT_ID
  ceremonyctl finalize      CEREMONY_ID CIRCUIT_ID BUCKET BEACON`)
	os.Exit(1)
}
