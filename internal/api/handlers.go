package api

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/custody/internal/core/domain"
)

func ownerParam(r *http.Request) domain.Principal {
	return domain.Principal(chi.URLParam(r, "owner"))
}

// requireOwner allows only the owner named in the path to act on it.
func requireOwner(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	owner := ownerParam(r)
	if callerFrom(r.Context()) != owner {
		writeError(w, r, domain.ErrNotAuthorized)
		return "", false
	}
	return owner, true
}

// requireDepositor allows only configured depositors to credit wallets.
func (s *Server) requireDepositor(w http.ResponseWriter, r *http.Request) bool {
	if !slices.Contains(s.svc.Depositors, callerFrom(r.Context())) {
		writeError(w, r, domain.ErrNotAuthorized)
		return false
	}
	return true
}

func txIDParam(w http.ResponseWriter, r *http.Request) (domain.TxID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("invalid transaction id: %w", err))
		return 0, false
	}
	return domain.TxID(id), true
}

// -----------------------------------------------------------------------------
// Wallets
// -----------------------------------------------------------------------------

type thresholdRequest struct {
	Threshold int `json:"threshold"`
}

func (s *Server) initializeWallet(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner := callerFrom(r.Context())
	if err := s.svc.Wallets.Initialize(r.Context(), owner, req.Threshold); err != nil {
		writeError(w, r, err)
		return
	}
	wallet, err := s.svc.Wallets.Get(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	if !s.requireDepositor(w, r) {
		return
	}
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner := ownerParam(r)
	if err := s.svc.Wallets.Deposit(r.Context(), owner, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	s.getBalance(w, r)
}

func (s *Server) setThreshold(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req thresholdRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.svc.Wallets.SetThreshold(r.Context(), owner, req.Threshold); err != nil {
		writeError(w, r, err)
		return
	}
	s.getWallet(w, r)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.svc.Wallets.Get(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)
	balance, err := s.svc.Wallets.GetBalance(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "balance": balance})
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func (s *Server) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To         domain.Principal    `json:"to"`
		Amount     uint64              `json:"amount"`
		Credential domain.CredentialID `json:"credential"`
	}
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	id, err := s.svc.Ledger.CreateWithdrawal(r.Context(), callerFrom(r.Context()), req.To, req.Amount, req.Credential)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pt, err := s.svc.Ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pt)
}

func (s *Server) approveTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := txIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Credential domain.CredentialID `json:"credential"`
	}
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	approvals, err := s.svc.Ledger.ApproveTransaction(r.Context(), id, req.Credential)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "approvals": approvals})
}

func (s *Server) executeTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := txIDParam(w, r)
	if !ok {
		return
	}
	pt, err := s.svc.Ledger.ExecuteTransaction(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := txIDParam(w, r)
	if !ok {
		return
	}
	pt, err := s.svc.Ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

// -----------------------------------------------------------------------------
// Guardians
// -----------------------------------------------------------------------------

func (s *Server) addGuardian(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req struct {
		Guardian domain.Principal `json:"guardian"`
	}
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.svc.Guardians.AddGuardian(r.Context(), owner, req.Guardian); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) removeGuardian(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	guardian := domain.Principal(chi.URLParam(r, "guardian"))
	if err := s.svc.Guardians.RemoveGuardian(r.Context(), owner, guardian); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setGuardianThreshold(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	var req thresholdRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.svc.Guardians.SetGuardianThreshold(r.Context(), owner, req.Threshold); err != nil {
		writeError(w, r, err)
		return
	}
	s.getGuardians(w, r)
}

func (s *Server) getGuardians(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)
	cfg, err := s.svc.Guardians.Config(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	active, err := s.svc.Guardians.ActiveGuardians(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if active == nil {
		active = []domain.Principal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg, "active": active})
}

func (s *Server) isGuardian(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)
	guardian := domain.Principal(chi.URLParam(r, "guardian"))
	ok, err := s.svc.Guardians.IsGuardian(r.Context(), owner, guardian)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "guardian": guardian, "is_guardian": ok})
}

// -----------------------------------------------------------------------------
// Recoveries
// -----------------------------------------------------------------------------

func (s *Server) initiateRecovery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewOwner domain.Principal `json:"new_owner"`
	}
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	owner := ownerParam(r)
	if err := s.svc.Recovery.InitiateRecovery(r.Context(), owner, req.NewOwner, callerFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeRecovery(w, r, http.StatusCreated)
}

func (s *Server) approveRecovery(w http.ResponseWriter, r *http.Request) {
	approvals, err := s.svc.Recovery.ApproveRecovery(r.Context(), ownerParam(r), callerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": ownerParam(r), "approvals": approvals})
}

func (s *Server) executeRecovery(w http.ResponseWriter, r *http.Request) {
	newOwner, err := s.svc.Recovery.ExecuteRecovery(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": ownerParam(r), "new_owner": newOwner})
}

func (s *Server) emergencyRecovery(w http.ResponseWriter, r *http.Request) {
	newOwner, err := s.svc.Recovery.EmergencyRecovery(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": ownerParam(r), "new_owner": newOwner})
}

func (s *Server) cancelRecovery(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Recovery.CancelRecovery(r.Context(), ownerParam(r), callerFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeRecovery(w, r, http.StatusOK)
}

func (s *Server) getRecovery(w http.ResponseWriter, r *http.Request) {
	s.writeRecovery(w, r, http.StatusOK)
}

func (s *Server) writeRecovery(w http.ResponseWriter, r *http.Request, status int) {
	req, err := s.svc.Recovery.Get(r.Context(), ownerParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"request":    req,
		"status":     req.Status(),
		"delay":      s.svc.Recovery.Delay(),
		"unlocks_at": req.InitiatedAt + s.svc.Recovery.Delay(),
	})
}

// -----------------------------------------------------------------------------
// Treasury
// -----------------------------------------------------------------------------

func (s *Server) getTreasury(w http.ResponseWriter, r *http.Request) {
	collected, err := s.svc.Fees.Collected(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"treasury":         s.svc.Fees.Treasury(),
		"registration_fee": s.svc.Fees.RegistrationFee(),
		"transfer_fee":     s.svc.Fees.TransferFee(),
		"collected":        collected,
	})
}
