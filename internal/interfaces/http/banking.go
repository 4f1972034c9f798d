package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"denaro/internal/domain/banking"
	"denaro/internal/shared/middleware"
)

// BankingHandler exposes the bank-linking flow over HTTP. It is the
// single place that maps domain errors to status codes; nothing below it
// writes to the wire.
type BankingHandler struct {
	linking *banking.LinkingService
	devices banking.DeviceRepository
}

func NewBankingHandler(linking *banking.LinkingService, devices banking.DeviceRepository) *BankingHandler {
	return &BankingHandler{linking: linking, devices: devices}
}

type linkRequest struct {
	InstitutionID string `json:"institutionId"`
	RedirectURL   string `json:"redirectUrl"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleInstitutions lists the aggregator's bank catalog for a country.
func (h *BankingHandler) HandleInstitutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := middleware.UserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	country := r.URL.Query().Get("country")
	institutions, err := h.linking.Institutions(r.Context(), userID, country)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, institutions)
}

// HandleLink starts a bank-linking consent flow.
func (h *BankingHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := middleware.UserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := h.linking.StartLinking(r.Context(), userID, req.InstitutionID, req.RedirectURL)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, start)
}

// HandleRequisitionStatus records the outcome the client observed when
// the user returned from the consent flow.
func (h *BankingHandler) HandleRequisitionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	requisitionID := r.PathValue("id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.linking.Finalize(r.Context(), requisitionID, banking.RequisitionStatus(req.Status)); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// HandleLinkCallback is the consent-page redirect target. The aggregator
// sends the user here with a ref and, on failure, an error parameter.
// A missing or blank ref counts as an error outcome, never a retry.
func (h *BankingHandler) HandleLinkCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ref := r.URL.Query().Get("ref")
	errParam := r.URL.Query().Get("error")
	outcome := banking.OutcomeFromRedirect(ref, errParam)

	if ref == "" {
		respondError(w, http.StatusBadRequest, "missing ref parameter")
		return
	}

	if err := h.linking.Finalize(r.Context(), ref, outcome); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

// HandleAccounts lists linked account ids per requisition.
func (h *BankingHandler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := middleware.UserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accounts, err := h.linking.Accounts(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, accounts)
}

// HandleAccountTransactions proxies an account's transactions.
func (h *BankingHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := middleware.UserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transactions, err := h.linking.Transactions(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, transactions)
}

type registerDeviceRequest struct {
	Token string `json:"token"`
}

// HandleRegisterDevice stores an FCM device token for push notifications.
func (h *BankingHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := middleware.UserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.devices.Register(r.Context(), userID, req.Token); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, struct{}{})
}

// respondDomainError maps domain errors to status codes. Messages stay
// generic; upstream detail is logged where it happens, never echoed.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, banking.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, banking.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, banking.ErrRequisitionNotFound):
		respondError(w, http.StatusNotFound, "requisition not found")
	case errors.Is(err, banking.ErrSessionUnavailable):
		log.Printf("Session unavailable for %s %s: %v", r.Method, r.URL.Path, err)
		respondError(w, http.StatusBadGateway, "bank integration unavailable")
	case errors.Is(err, banking.ErrUpstreamAuth), errors.Is(err, banking.ErrUpstream):
		log.Printf("Upstream failure for %s %s: %v", r.Method, r.URL.Path, err)
		respondError(w, http.StatusBadGateway, "bank integration unavailable")
	default:
		log.Printf("Internal error for %s %s: %v", r.Method, r.URL.Path, err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
