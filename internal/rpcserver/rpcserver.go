// Package rpcserver exposes the authenticated RPC surface (spec §6):
// verifyContribution and finalizeCircuit, over HTTP via httprouter.
package rpcserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/muridata/ceremony-coordinator/internal/ceremony"
	"github.com/muridata/ceremony-coordinator/internal/finalizer"
	"github.com/muridata/ceremony-coordinator/internal/verifier"
)

// Role is the bearer-token claim the auth middleware extracts.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleCoordinator Role = "coordinator"
)

// Authenticator resolves a bearer token to a caller identity and role.
// The real implementation (out of scope, Non-goal: end-user auth flows) is
// injected; StaticAuthenticator below is a dev/test stand-in.
type Authenticator interface {
	Authenticate(token string) (callerID string, r Role, err error)
}

// StaticAuthenticator maps fixed bearer tokens to identities, for tests and
// single-operator deployments.
type StaticAuthenticator struct {
	Tokens map[string]struct {
		CallerID string
		Role     Role
	}
}

func (a StaticAuthenticator) Authenticate(token string) (string, Role, error) {
	entry, ok := a.Tokens[token]
	if !ok {
		return "", "", ceremony.AuthErrorf("rpcserver.Authenticate", "unknown bearer token")
	}
	return entry.CallerID, entry.Role, nil
}

// Server wires the Verifier and Finalizer behind an httprouter mux.
type Server struct {
	Verifier  *verifier.Verifier
	Finalizer *finalizer.Finalizer
	Auth      Authenticator
	Logger    zerolog.Logger

	router *httprouter.Router
}

// New builds a Server and registers its routes.
func New(v *verifier.Verifier, f *finalizer.Finalizer, auth Authenticator, logger zerolog.Logger) *Server {
	s := &Server{Verifier: v, Finalizer: f, Auth: auth, Logger: logger.With().Str("component", "rpcserver").Logger()}
	r := httprouter.New()
	r.POST("/rpc/verifyContribution", s.handleVerifyContribution)
	r.POST("/rpc/finalizeCircuit", s.handleFinalizeCircuit)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

type verifyContributionBody struct {
	CeremonyID string `json:"ceremonyId"`
	CircuitID  string `json:"circuitId"`
	BucketName string `json:"bucketName"`
}

func (s *Server) handleVerifyContribution(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	callerID, r, err := s.authenticate(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if r != RoleParticipant && r != RoleCoordinator {
		writeError(w, ceremony.AuthErrorf("rpcserver.verifyContribution", "role %q may not call verifyContribution", r))
		return
	}

	var body verifyContributionBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, ceremony.InputErrorf("rpcserver.verifyContribution", "decode request: %v", err))
		return
	}

	vreq := verifier.Request{
		CeremonyID:    body.CeremonyID,
		CircuitID:     body.CircuitID,
		CallerID:      callerID,
		IsCoordinator: r == RoleCoordinator,
		BucketName:    body.BucketName,
	}
	if err := s.Verifier.VerifyContribution(req.Context(), vreq); err != nil {
		s.Logger.Error().Err(err).Str("ceremony", body.CeremonyID).Str("circuit", body.CircuitID).Msg("rpcserver: verifyContribution failed")
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type finalizeCircuitBody struct {
	CeremonyID string `json:"ceremonyId"`
	CircuitID  string `json:"circuitId"`
	BucketName string `json:"bucketName"`
	Beacon     string `json:"beacon"`
}

func (s *Server) handleFinalizeCircuit(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	_, r, err := s.authenticate(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if r != RoleCoordinator {
		writeError(w, ceremony.AuthErrorf("rpcserver.finalizeCircuit", "only the coordinator may call finalizeCircuit"))
		return
	}

	var body finalizeCircuitBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, ceremony.InputErrorf("rpcserver.finalizeCircuit", "decode request: %v", err))
		return
	}

	freq := finalizer.Request{CeremonyID: body.CeremonyID, CircuitID: body.CircuitID, BucketName: body.BucketName, Beacon: body.Beacon}
	if err := s.Finalizer.FinalizeCircuit(req.Context(), freq); err != nil {
		s.Logger.Error().Err(err).Str("ceremony", body.CeremonyID).Str("circuit", body.CircuitID).Msg("rpcserver: finalizeCircuit failed")
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authenticate(req *http.Request) (callerID string, r Role, err error) {
	header := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", "", ceremony.AuthErrorf("rpcserver.authenticate", "missing bearer token")
	}
	return s.Auth.Authenticate(strings.TrimPrefix(header, prefix))
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ceremony.CodeOf(err) {
	case ceremony.CodeInput:
		status = http.StatusBadRequest
	case ceremony.CodeAuth:
		status = http.StatusUnauthorized
	case ceremony.CodeNotFound:
		status = http.StatusNotFound
	case ceremony.CodePrecondition:
		status = http.StatusConflict
	case ceremony.CodeWorker:
		status = http.StatusBadGateway
	case ceremony.CodeTransientStore:
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": string(ceremony.CodeOf(err))})
}
