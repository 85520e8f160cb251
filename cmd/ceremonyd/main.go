// Command ceremonyd is the control plane server: it wires the Store, blob
// store and worker pool to the Coordinator, Refresher, Verifier and
// Finalizer, then serves the authenticated RPC surface over HTTP.
package main

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"

	"github.com/muridata/ceremony-coordinator/config"
	"github.com/muridata/ceremony-coordinator/internal/blobstore"
	"github.com/muridata/ceremony-coordinator/internal/clock"
	"github.com/muridata/ceremony-coordinator/internal/coordinator"
	"github.com/muridata/ceremony-coordinator/internal/finalizer"
	"github.com/muridata/ceremony-coordinator/internal/obs"
	"github.com/muridata/ceremony-coordinator/internal/refresher"
	"github.com/muridata/ceremony-coordinator/internal/rpcserver"
	"github.com/muridata/ceremony-coordinator/internal/store"
	"github.com/muridata/ceremony-coordinator/internal/verifier"
	"github.com/muridata/ceremony-coordinator/internal/workerpool"
)

func main() {
	logger := obs.NewServerLogger()
	cfg := config.LoadServerConfig()

	software, err := config.LoadVerificationSoftware()
	if err != nil {
		log.Fatalf("ceremonyd: %v", err)
	}

	wal, err := os.OpenFile(cfg.WALPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("ceremonyd: open WAL %q: %v", cfg.WALPath, err)
	}
	defer wal.Close()

	s := store.NewMemStore(wal)
	blobs, err := blobstore.NewLocal(cfg.BlobRoot)
	if err != nil {
		log.Fatalf("ceremonyd: %v", err)
	}
	workers := workerpool.NewLocal()
	sysClock := clock.System{}

	co := coordinator.New(s, sysClock, logger)
	s.WatchParticipantUpdates(co.HandleParticipantUpdate)

	re := refresher.New(s, sysClock, logger)
	s.WatchContributionCreates(re.HandleContributionCreated)

	v := &verifier.Verifier{
		Store: s, Blobs: blobs, Workers: workers, Clock: sysClock,
		Software: software, Logger: logger,
	}
	f := finalizer.New(s, blobs, logger)

	auth := loadStaticAuthenticator()
	rpc := rpcserver.New(v, f, auth, logger)

	mux := http.NewServeMux()
	mux.Handle("/rpc/", rpc)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	logger.Info().Str("addr", cfg.BindAddr).Msg("ceremonyd: listening")
	if err := http.ListenAndServe(cfg.BindAddr, mux); err != nil {
		log.Fatalf("ceremonyd: %v", err)
	}
}

// loadStaticAuthenticator reads CEREMONY_TOKEN_<ROLE>_<CALLERID>=token
// bearer-token grants from the environment. The real auth flow (Non-goal)
// is left for a deployment to inject its own rpcserver.Authenticator.
func loadStaticAuthenticator() rpcserver.StaticAuthenticator {
	type grant struct {
		CallerID string
		Role     rpcserver.Role
	}
	tokens := make(map[string]struct {
		CallerID string
		Role     rpcserver.Role
	})
	for _, kv := range os.Environ() {
		key, token, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(key, "CEREMONY_TOKEN_")
		if !ok {
			continue
		}

		var g grant
		switch {
		case strings.HasPrefix(rest, "COORDINATOR_"):
			g = grant{Role: rpcserver.RoleCoordinator, CallerID: strings.TrimPrefix(rest, "COORDINATOR_")}
		case strings.HasPrefix(rest, "PARTICIPANT_"):
			g = grant{Role: rpcserver.RoleParticipant, CallerID: strings.TrimPrefix(rest, "PARTICIPANT_")}
		default:
			continue
		}
		tokens[token] = g
	}
	return rpcserver.StaticAuthenticator{Tokens: tokens}
}
