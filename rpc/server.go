package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchpay/core"
	"matchpay/core/types"
)

const maxBodyBytes = 1 << 20

// Server exposes the settlement node over HTTP. All mutating routes go
// through the node, which serializes them; the server itself holds no
// settlement state.
type Server struct {
	node        *core.Node
	log         *slog.Logger
	adminSecret string
	limiter     *rateLimiter
}

// NewServer builds a server around the node. An empty adminSecret leaves
// the admin routes disabled; a non-positive rate disables limiting.
func NewServer(node *core.Node, log *slog.Logger, adminSecret string, ratePerSecond float64, burst int) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		node:        node,
		log:         log,
		adminSecret: adminSecret,
		limiter:     newRateLimiter(ratePerSecond, burst),
	}
}

// Router assembles the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.limiter.middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/requests", s.handleSubmitRequest)
		r.Get("/requests/{id}", s.handleGetRequest)
		r.Post("/providers", s.handleRegisterProvider)
		r.Get("/providers/{addr}", s.handleGetProvider)
		r.Put("/reputation/{addr}", s.handleSetReputation)
		r.Post("/credit", s.handleCredit)
		r.Get("/accounts/{addr}", s.handleGetAccount)

		r.Post("/match/request", s.handleRequestMatch)
		r.Post("/match/accept", s.handleAcceptMatch)
		r.Post("/match/reject", s.handleRejectMatch)
		r.Post("/match/{requestId}/status", s.handleUpdateMatchStatus)
		r.Get("/matches/{requestId}", s.handleGetMatch)
		r.Get("/matches/{requestId}/history", s.handleMatchHistory)
		r.Get("/proposals/{id}", s.handleGetProposal)
		r.Get("/requests/{id}/proposals", s.handleProposalsForRequest)

		r.Post("/escrow/deposit", s.handleDeposit)
		r.Post("/escrow/{id}/release", s.handleRelease)
		r.Post("/escrow/{id}/refund", s.handleRefund)
		r.Post("/escrow/{id}/dispute", s.handleDispute)
		r.Post("/escrow/{id}/resolve", s.handleResolve)
		r.Get("/escrow/{id}", s.handleGetEscrow)
		r.Get("/escrow/by-request/{requestId}", s.handleGetEscrowByRequest)

		r.Get("/events", s.handleEvents)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth(s.adminSecret))
			r.Post("/authority", s.handleSetAuthority)
			r.Post("/params", s.handleSetParams)
		})
	})

	return r
}

func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var payload requestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	creator, err := parseAddress(payload.Creator)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	req := &types.Request{
		ID:      payload.ID,
		Creator: creator,
		Tags:    payload.Tags,
		Urgency: payload.Urgency,
	}
	if err := s.node.SubmitRequest(req); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("request submitted", "requestId", req.ID)
	writeJSON(w, http.StatusCreated, newRequestView(req))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	req, ok, err := s.node.GetRequest(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "request not found"})
		return
	}
	writeJSON(w, http.StatusOK, newRequestView(req))
}

func (s *Server) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	var payload providerPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	addr, err := parseAddress(payload.Address)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	prov := &types.Provider{
		Address: addr,
		Skills:  payload.Skills,
		Active:  payload.Active,
	}
	if err := s.node.RegisterProvider(prov); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("provider registered", "provider", payload.Address, "active", prov.Active)
	writeJSON(w, http.StatusCreated, newProviderView(prov))
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	prov, ok, err := s.node.GetProvider(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "provider not found"})
		return
	}
	writeJSON(w, http.StatusOK, newProviderView(prov))
}

func (s *Server) handleSetReputation(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var payload reputationPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.node.SetReputation(addr, payload.Score); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"score": payload.Score})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var payload creditPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	addr, err := parseAddress(payload.Address)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.node.Credit(caller, addr, payload.Currency, amount); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("account credited", "address", payload.Address, "currency", payload.Currency, "amount", amount.String())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView{
		Address:     formatAddress(addr),
		Nonce:       account.Nonce,
		BalancePAY:  account.BalancePAY.String(),
		BalanceZPAY: account.BalanceZPAY.String(),
	})
}

func (s *Server) handleRequestMatch(w http.ResponseWriter, r *http.Request) {
	var payload matchRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	proposalIDs, err := s.node.RequestMatch(payload.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("match fan-out complete", "requestId", payload.RequestID, "proposals", len(proposalIDs))
	writeJSON(w, http.StatusOK, map[string][]uint64{"proposalIds": proposalIDs})
}

func (s *Server) handleAcceptMatch(w http.ResponseWriter, r *http.Request) {
	var payload proposalActionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	m, err := s.node.AcceptMatch(payload.ProposalID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("match accepted", "requestId", m.RequestID, "proposalId", payload.ProposalID)
	writeJSON(w, http.StatusOK, newMatchView(m))
}

func (s *Server) handleRejectMatch(w http.ResponseWriter, r *http.Request) {
	var payload proposalActionPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.node.RejectMatch(payload.ProposalID, caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateMatchStatus(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var payload statusUpdatePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.node.UpdateMatchStatus(requestID, payload.Status, caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": payload.Status})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	m, err := s.node.GetMatch(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMatchView(m))
}

func (s *Server) handleMatchHistory(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	updates := s.node.MatchHistory(requestID)
	views := make([]updateView, 0, len(updates))
	for _, u := range updates {
		views = append(views, newUpdateView(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	proposal, err := s.node.GetProposal(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProposalView(proposal))
}

func (s *Server) handleProposalsForRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	ids := s.node.ProposalsForRequest(requestID)
	writeJSON(w, http.StatusOK, map[string][]uint64{"proposalIds": ids})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var payload depositPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	depositor, err := parseAddress(payload.Depositor)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	provider, err := parseAddress(payload.Provider)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	amount, err := parseAmount(payload.Amount)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	id, err := s.node.Deposit(payload.RequestID, depositor, provider, amount, payload.Currency)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("escrow funded", "escrowId", id, "requestId", payload.RequestID, "amount", amount.String())
	writeJSON(w, http.StatusCreated, map[string]uint64{"escrowId": id})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.escrowAction(w, r, s.node.ReleaseEscrow)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	s.escrowAction(w, r, s.node.RefundEscrow)
}

func (s *Server) escrowAction(w http.ResponseWriter, r *http.Request, action func(uint64, [20]byte) error) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var payload callerPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := action(id, caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	disputeID, err := s.node.InitiateDispute(id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("dispute opened", "escrowId", id, "disputeId", disputeID)
	writeJSON(w, http.StatusOK, map[string]string{"disputeId": disputeID})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var payload resolvePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.node.ResolveDispute(id, payload.ToProvider, caller); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("dispute resolved", "escrowId", id, "toProvider", payload.ToProvider)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	esc, err := s.node.GetEscrow(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowView(esc))
}

func (s *Server) handleGetEscrowByRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	esc, err := s.node.GetEscrowByRequest(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowView(esc))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		limit = parsed
	}
	evts := s.node.Events()
	if limit > 0 && len(evts) > limit {
		evts = evts[len(evts)-limit:]
	}
	views := make([]eventView, 0, len(evts))
	for _, evt := range evts {
		views = append(views, eventView{Type: evt.Type, Attributes: evt.Attributes})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSetAuthority(w http.ResponseWriter, r *http.Request) {
	var payload authorityPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	authority, err := parseAddress(payload.Authority)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.node.SetAuthority(caller, authority); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("authority set", "authority", payload.Authority)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var payload paramsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	setters := []struct {
		apply func() error
		set   bool
	}{
		{func() error { return s.node.SetFeeRate(caller, *payload.FeeRatePercent) }, payload.FeeRatePercent != nil},
		{func() error { return s.node.SetMaxEscrows(caller, *payload.MaxEscrows) }, payload.MaxEscrows != nil},
		{func() error { return s.node.SetMaxProposals(caller, *payload.MaxProposals) }, payload.MaxProposals != nil},
		{func() error { return s.node.SetMinReputation(caller, *payload.MinReputation) }, payload.MinReputation != nil},
		{func() error { return s.node.SetMinTagOverlap(caller, *payload.MinTagOverlap) }, payload.MinTagOverlap != nil},
		{func() error { return s.node.SetMaxProvidersPerMatch(caller, *payload.MaxProvidersPerMatch) }, payload.MaxProvidersPerMatch != nil},
		{func() error { return s.node.SetProposalExpiryWindow(caller, *payload.ProposalExpirySecs) }, payload.ProposalExpirySecs != nil},
	}
	applied := 0
	for _, setter := range setters {
		if !setter.set {
			continue
		}
		if err := setter.apply(); err != nil {
			writeError(w, err)
			return
		}
		applied++
	}
	if applied == 0 {
		writeBadRequest(w, "no parameters provided")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
}
