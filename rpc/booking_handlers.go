package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"bookingledger/core/events"
	"bookingledger/crypto"
	"bookingledger/native/booking"
)

type bookingCreateParams struct {
	ID               string `json:"id"`
	Value            string `json:"value"`
	Commission       string `json:"commission"`
	Customer         string `json:"customer"`
	Supplier         string `json:"supplier"`
	FinalisationTime int64  `json:"finalisationTime"`
	CheckIn          int64  `json:"checkIn,omitempty"`
	CheckOut         int64  `json:"checkOut,omitempty"`
	Refundable       bool   `json:"refundable,omitempty"`
}

type bookingPayParams struct {
	ID     string `json:"id"`
	Payer  string `json:"payer"`
	Amount string `json:"amount"`
}

type bookingActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type bookingViewerParams struct {
	ID     string `json:"id"`
	Viewer string `json:"viewer"`
}

type bookingIDParams struct {
	ID string `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
}

type fundParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type eventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type bookingJSON struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Supplier         string `json:"supplier"`
	Value            string `json:"value"`
	Commission       string `json:"commission"`
	FinalisationTime int64  `json:"finalisationTime"`
	CreatedAt        int64  `json:"createdAt"`
	PaidAmount       string `json:"paidAmount"`
	Status           string `json:"status"`
	CheckIn          int64  `json:"checkIn,omitempty"`
	CheckOut         int64  `json:"checkOut,omitempty"`
	Refundable       bool   `json:"refundable"`
}

type balanceJSON struct {
	ID     string `json:"id"`
	Viewer string `json:"viewer"`
	Amount string `json:"amount"`
}

type accountJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type statusJSON struct {
	Status string `json:"status"`
}

func formatBooking(b *booking.Booking) bookingJSON {
	return bookingJSON{
		ID:               hex.EncodeToString(b.ID[:]),
		Customer:         crypto.NewAddress(b.Customer[:]).String(),
		Supplier:         crypto.NewAddress(b.Supplier[:]).String(),
		Value:            b.Value.String(),
		Commission:       b.Commission.String(),
		FinalisationTime: b.FinalisationTime,
		CreatedAt:        b.CreatedAt,
		PaidAmount:       b.PaidAmount.String(),
		Status:           b.Status().String(),
		CheckIn:          b.CheckIn,
		CheckOut:         b.CheckOut,
		Refundable:       b.Refundable,
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseBookingID(raw string) ([32]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [32]byte{}, errors.New("id is required")
	}
	return booking.ComputeID([]byte(trimmed)), nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, errors.New("amount must be a base-10 integer")
	}
	if amount.Sign() < 0 {
		return nil, errors.New("amount must not be negative")
	}
	return amount, nil
}

// writeBookingError maps the ledger's rejection taxonomy onto distinct
// JSON-RPC error codes and stable machine-readable messages.
func writeBookingError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, booking.ErrUnknownBooking):
		writeError(w, http.StatusNotFound, id, codeBookingNotFound, "unknown_booking", err.Error())
	case errors.Is(err, booking.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, id, codeBookingConflict, "duplicate_booking", err.Error())
	case errors.Is(err, booking.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, id, codeBookingConflict, "already_paid", err.Error())
	case errors.Is(err, booking.ErrAlreadySettled):
		writeError(w, http.StatusConflict, id, codeBookingConflict, "already_settled", err.Error())
	case errors.Is(err, booking.ErrWrongPayer):
		writeError(w, http.StatusForbidden, id, codeBookingForbidden, "wrong_payer", err.Error())
	case errors.Is(err, booking.ErrInvalidCommission):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_commission", err.Error())
	case errors.Is(err, booking.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_value", err.Error())
	case errors.Is(err, booking.ErrWrongAmount):
		writeError(w, http.StatusConflict, id, codeBookingRejected, "wrong_amount", err.Error())
	case errors.Is(err, booking.ErrNotPaid):
		writeError(w, http.StatusConflict, id, codeBookingRejected, "not_paid", err.Error())
	case errors.Is(err, booking.ErrTooEarly):
		writeError(w, http.StatusConflict, id, codeBookingRejected, "too_early", err.Error())
	case errors.Is(err, booking.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, id, codeBookingRejected, "insufficient_funds", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleBookingCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bookingCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseBookingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "value: "+err.Error())
		return
	}
	commission, err := parseAmount(params.Commission)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "commission: "+err.Error())
		return
	}
	customer, err := parseAddress(params.Customer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "customer: "+err.Error())
		return
	}
	supplier, err := parseAddress(params.Supplier)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "supplier: "+err.Error())
		return
	}
	meta := booking.Meta{CheckIn: params.CheckIn, CheckOut: params.CheckOut, Refundable: params.Refundable}
	record, err := s.node.CreateBooking(id, value, commission, customer, supplier, params.FinalisationTime, meta)
	if err != nil {
		writeBookingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatBooking(record))
}

func (s *Server) handleBookingPay(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bookingPayParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseBookingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	payer, err := parseAddress(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "payer: "+err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "amount: "+err.Error())
		return
	}
	if err := s.node.PayForBooking(id, payer, amount); err != nil {
		writeBookingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, statusJSON{Status: "paid"})
}

func (s *Server) handleBookingDrawDown(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bookingActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseBookingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "caller: "+err.Error())
		return
	}
	if err := s.node.DrawDown(id, caller); err != nil {
		writeBookingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, statusJSON{Status: "settled"})
}

func (s *Server) handleBookingBalanceOf(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bookingViewerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseBookingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	viewer, err := parseAddress(params.Viewer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "viewer: "+err.Error())
		return
	}
	amount, err := s.node.BalanceOf(id, viewer)
	if err != nil {
		writeBookingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		ID:     hex.EncodeToString(id[:]),
		Viewer: crypto.NewAddress(viewer[:]).String(),
		Amount: amount.String(),
	})
}

func (s *Server) handleBookingGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bookingIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseBookingID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.node.GetBooking(id)
	if err != nil {
		writeBookingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatBooking(record))
}

func (s *Server) handleLedgerGetBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, accountJSON{
		Address: crypto.NewAddress(addr[:]).String(),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleLedgerAgentAddress(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, addressParams{Address: s.node.AgentAddress().String()})
}

func (s *Server) handleLedgerEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	params := eventsParams{}
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	entries := s.node.Events(params.Prefix, params.Limit)
	if entries == nil {
		entries = []events.Entry{}
	}
	writeResult(w, req.ID, entries)
}

func (s *Server) handleLedgerFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params fundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "amount: "+err.Error())
		return
	}
	if err := s.node.FundAccount(addr, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, statusJSON{Status: "funded"})
}
