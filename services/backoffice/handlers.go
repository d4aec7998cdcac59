package backoffice

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	coreerrors "fundcore/core/errors"
	"fundcore/crypto"
	"fundcore/native/credit"
	"fundcore/native/fees"
	"fundcore/native/funds"
	"fundcore/native/governance"
	"fundcore/native/orderbook"
	"fundcore/native/reservation"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

var notFound = []error{
	funds.ErrFundNotFound,
	governance.ErrTxNotFound,
	governance.ErrNotInitialized,
	credit.ErrAdvanceNotFound,
	orderbook.ErrOrderNotFound,
	reservation.ErrNotFound,
}

// writeLedgerError maps a ledger error to its HTTP status by error kind.
func (s *Server) writeLedgerError(w http.ResponseWriter, err error) {
	for _, target := range notFound {
		if errors.Is(err, target) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
			return
		}
	}
	kind := coreerrors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case coreerrors.KindValidation:
		status = http.StatusBadRequest
	case coreerrors.KindEligibility, coreerrors.KindAuthorization:
		status = http.StatusForbidden
	case coreerrors.KindResourceState:
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger read failed", "error", err)
		writeJSON(w, status, errorResponse{Error: "internal error", Kind: kind.String()})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressParam(r *http.Request) (crypto.Address, error) {
	return crypto.ParseAddress(chi.URLParam(r, "address"))
}

func tokenParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "token")))
}

type fundView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Token         string `json:"token"`
	TokenAccount  string `json:"tokenAccount"`
	PoolAccount   string `json:"poolAccount"`
	OracleAccount string `json:"oracleAccount"`
	CreatedAt     uint64 `json:"createdAt"`
}

func newFundView(f *funds.Fund) fundView {
	return fundView{
		ID:            f.ID,
		Name:          f.Name,
		Token:         f.Token,
		TokenAccount:  f.TokenAccount.String(),
		PoolAccount:   f.PoolAccount.String(),
		OracleAccount: f.OracleAccount.String(),
		CreatedAt:     f.CreatedAt,
	}
}

func (s *Server) handleFunds(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.Funds()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	out := make([]fundView, 0, len(list))
	for _, f := range list {
		out = append(out, newFundView(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	f, err := s.ledger.Fund(chi.URLParam(r, "id"))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFundView(f))
}

type navView struct {
	Token         string `json:"token"`
	NAV           string `json:"nav"`
	UpdatedAt     uint64 `json:"updatedAt"`
	VolatilityBps uint32 `json:"volatilityBps"`
	Fresh         bool   `json:"fresh"`
	Error         string `json:"error,omitempty"`
}

// handleNAV reports the stored record even when it is too old to trade on.
func (s *Server) handleNAV(w http.ResponseWriter, r *http.Request) {
	token := tokenParam(r)
	rec, err := s.ledger.NAVRecord(token)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	view := navView{Token: rec.Token, NAV: amount(rec.VNI), UpdatedAt: rec.UpdatedAt, VolatilityBps: rec.VolatilityBps, Fresh: true}
	if _, err := s.ledger.NAV(token); err != nil {
		view.Fresh = false
		view.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, view)
}

type reserveView struct {
	Token             string `json:"token"`
	Account           string `json:"account"`
	Cash              string `json:"cash"`
	ReservedInventory string `json:"reservedInventory"`
	SpreadBps         uint32 `json:"spreadBps"`
	GuaranteeFundBps  uint32 `json:"guaranteeFundBps"`
	Treasury          string `json:"treasury"`
	RatioBps          string `json:"ratioBps,omitempty"`
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	token := tokenParam(r)
	res, err := s.ledger.PoolReserve(token)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	view := reserveView{
		Token:             res.Token,
		Account:           res.Account.String(),
		Cash:              amount(res.Cash),
		ReservedInventory: amount(res.ReservedInventory),
		SpreadBps:         res.SpreadBps,
		GuaranteeFundBps:  res.GuaranteeFundBps,
		Treasury:          res.Treasury.String(),
	}
	if ratio, err := s.ledger.ReserveRatio(token); err == nil {
		view.RatioBps = ratio.String()
	}
	writeJSON(w, http.StatusOK, view)
}

type profileView struct {
	Address            string `json:"address"`
	KYCLevel           uint8  `json:"kycLevel"`
	Whitelisted        bool   `json:"whitelisted"`
	Resident           bool   `json:"resident"`
	Score              uint8  `json:"score"`
	Tier               string `json:"tier"`
	FeeLevel           string `json:"feeLevel"`
	SubscriptionActive bool   `json:"subscriptionActive"`
	UpdatedAt          uint64 `json:"updatedAt"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.ledger.Profile(addr)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileView{
		Address:            addr.String(),
		KYCLevel:           p.KYCLevel,
		Whitelisted:        p.Whitelisted(),
		Resident:           p.Resident,
		Score:              p.Score,
		Tier:               p.Tier().String(),
		FeeLevel:           p.FeeLevel().String(),
		SubscriptionActive: p.SubscriptionActive,
		UpdatedAt:          p.UpdatedAt,
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token := tokenParam(r)
	balance, err := s.ledger.Balance(addr, token)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	spendable, err := s.ledger.Spendable(addr, token)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address":   addr.String(),
		"token":     token,
		"balance":   amount(balance),
		"spendable": amount(spendable),
	})
}

type feeTotalsView struct {
	Gross  string `json:"gross"`
	Fee    string `json:"fee"`
	VAT    string `json:"vat"`
	Trades uint64 `json:"trades"`
}

type feesView struct {
	Domains      map[string]feeTotalsView `json:"domains"`
	Compartments map[string]string        `json:"compartments"`
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	domains := []string{fees.DomainPool, fees.DomainP2P}
	if d := fees.NormalizeDomain(r.URL.Query().Get("domain")); d != "" {
		if d != fees.DomainPool && d != fees.DomainP2P {
			s.writeLedgerError(w, fmt.Errorf("%w: %s", fees.ErrUnknownDomain, d))
			return
		}
		domains = []string{d}
	}
	view := feesView{Domains: make(map[string]feeTotalsView, len(domains)), Compartments: make(map[string]string)}
	for _, domain := range domains {
		totals, err := s.ledger.FeeTotals(domain)
		if err != nil {
			s.writeLedgerError(w, err)
			return
		}
		view.Domains[domain] = feeTotalsView{Gross: amount(totals.Gross), Fee: amount(totals.Fee), VAT: amount(totals.VAT), Trades: totals.Trades}
	}
	balances, err := s.ledger.CompartmentBalances()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	for compartment, balance := range balances {
		view.Compartments[string(compartment)] = amount(balance)
	}
	writeJSON(w, http.StatusOK, view)
}

type lockView struct {
	Caller    string `json:"caller"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	UpdatedAt uint64 `json:"updatedAt"`
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	locks, err := s.ledger.Locks(addr)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	out := make([]lockView, 0, len(locks))
	for _, l := range locks {
		out = append(out, lockView{Caller: l.Caller.String(), Token: l.Token, Amount: amount(l.Amount), UpdatedAt: l.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseModel accepts "a", "b", "credit-a" or "credit-b"; empty selects A.
func parseModel(v string) (credit.Model, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "a", "credit-a":
		return credit.ModelA, nil
	case "b", "credit-b":
		return credit.ModelB, nil
	default:
		return 0, fmt.Errorf("unknown credit model %q", v)
	}
}

type advanceView struct {
	ID           uint64 `json:"id"`
	Model        string `json:"model"`
	Borrower     string `json:"borrower"`
	Token        string `json:"token"`
	Tier         string `json:"tier"`
	Status       string `json:"status"`
	RateBps      uint32 `json:"rateBps"`
	DurationDays uint32 `json:"durationDays"`
	Collateral   string `json:"collateral"`
	Principal    string `json:"principal"`
	Repaid       string `json:"principalRepaid"`
	Accrued      string `json:"accrued"`
	StartAt      uint64 `json:"startAt"`
	Debt         string `json:"debt,omitempty"`
	LTVBps       string `json:"ltvBps,omitempty"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid advance id")
		return
	}
	model, err := parseModel(r.URL.Query().Get("model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.ledger.Advance(model, id)
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	view := advanceView{
		ID:           a.ID,
		Model:        a.Model.String(),
		Borrower:     a.Borrower.String(),
		Token:        a.Token,
		Tier:         a.Tier.String(),
		Status:       a.Status.String(),
		RateBps:      a.RateBps,
		DurationDays: a.DurationDays,
		Collateral:   amount(a.Collateral),
		Principal:    amount(a.Principal),
		Repaid:       amount(a.PrincipalRepaid),
		Accrued:      amount(a.Accrued),
		StartAt:      a.StartAt,
	}
	if a.Status == credit.StatusActive {
		if debt, err := s.ledger.Debt(model, id); err == nil {
			view.Debt = debt.String()
		}
		if ltv, err := s.ledger.LTV(model, id); err == nil {
			view.LTVBps = ltv.String()
		}
	}
	writeJSON(w, http.StatusOK, view)
}

type orderView struct {
	ID       string `json:"id"`
	Maker    string `json:"maker"`
	Side     string `json:"side"`
	Amount   string `json:"amount"`
	Filled   string `json:"filled"`
	Price    string `json:"price"`
	Deadline uint64 `json:"deadline"`
	Status   string `json:"status"`
}

func newOrderViews(orders []*orderbook.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderView{
			ID:       o.ID,
			Maker:    o.Maker.String(),
			Side:     o.Side.String(),
			Amount:   amount(o.Amount),
			Filled:   amount(o.Filled),
			Price:    amount(o.Price),
			Deadline: o.Deadline,
			Status:   o.Status.String(),
		})
	}
	return out
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Orders(tokenParam(r))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": snap.Token,
		"bids":  newOrderViews(snap.Bids),
		"asks":  newOrderViews(snap.Asks),
	})
}

type transactionView struct {
	ID            uint64   `json:"id"`
	Method        string   `json:"method"`
	Submitter     string   `json:"submitter"`
	Value         string   `json:"value"`
	Data          string   `json:"data,omitempty"`
	Confirmations []string `json:"confirmations"`
	Status        string   `json:"status"`
	SubmittedAt   uint64   `json:"submittedAt"`
	ExecutedAt    uint64   `json:"executedAt,omitempty"`
}

type councilView struct {
	Address   string   `json:"address"`
	Owners    []string `json:"owners"`
	Threshold uint32   `json:"threshold"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	council, err := s.ledger.Council()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	txs, err := s.ledger.Transactions()
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		if status != "" && t.Status.String() != status {
			continue
		}
		confirmations := make([]string, 0, len(t.Confirmations))
		for _, c := range t.Confirmations {
			confirmations = append(confirmations, c.String())
		}
		out = append(out, transactionView{
			ID:            t.ID,
			Method:        t.To,
			Submitter:     t.Submitter.String(),
			Value:         amount(t.Value),
			Data:          string(t.Data),
			Confirmations: confirmations,
			Status:        t.Status.String(),
			SubmittedAt:   t.SubmittedAt,
			ExecutedAt:    t.ExecutedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	owners := make([]string, 0, len(council.Owners))
	for _, o := range council.Owners {
		owners = append(owners, o.String())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"council":      councilView{Address: council.Address.String(), Owners: owners, Threshold: council.Threshold},
		"transactions": out,
	})
}

type breakerView struct {
	Token        string `json:"token"`
	ThresholdBps uint32 `json:"thresholdBps"`
	Tripped      bool   `json:"tripped"`
	Trigger      string `json:"trigger,omitempty"`
	TrippedAt    uint64 `json:"trippedAt,omitempty"`
	Reason       string `json:"reason,omitempty"`
	LastRatioBps string `json:"lastRatioBps,omitempty"`
	ResetAt      uint64 `json:"resetAt,omitempty"`
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.BreakerState(tokenParam(r))
	if err != nil {
		s.writeLedgerError(w, err)
		return
	}
	view := breakerView{
		Token:        st.Token,
		ThresholdBps: st.ThresholdBps,
		Tripped:      st.Tripped,
		Trigger:      string(st.Trigger),
		TrippedAt:    st.TrippedAt,
		Reason:       st.Reason,
		ResetAt:      st.ResetAt,
	}
	if st.LastRatioBps != nil {
		view.LastRatioBps = st.LastRatioBps.String()
	}
	writeJSON(w, http.StatusOK, view)
}
