package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ShivamSoni20/sol-gift/crypto"
	"github.com/ShivamSoni20/sol-gift/native/giftcard"
)

const (
	codeGiftInvalidParams = -32021
	codeGiftNotFound      = -32022
	codeGiftForbidden     = -32023
	codeGiftConflict      = -32024
	codeGiftInternal      = -32025
)

const expirySkewSeconds int64 = 5

type giftIssueParams struct {
	Issuer       string `json:"issuer"`
	Amount       string `json:"amount"`
	ExpiresAt    int64  `json:"expiresAt"`
	MerchantName string `json:"merchantName"`
	Merchant     string `json:"merchant"`
	URI          string `json:"uri,omitempty"`
	Nonce        uint64 `json:"nonce"`
}

type giftIDParams struct {
	ID string `json:"id"`
}

type giftTransferParams struct {
	ID       string `json:"id"`
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type giftRedeemParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Amount string `json:"amount,omitempty"`
}

type giftActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type addressParams struct {
	Address string `json:"address"`
}

type giftCardJSON struct {
	ID               string `json:"id"`
	Issuer           string `json:"issuer"`
	CurrentOwner     string `json:"currentOwner"`
	Merchant         string `json:"merchant"`
	MerchantName     string `json:"merchantName"`
	Amount           string `json:"amount"`
	RemainingBalance string `json:"remainingBalance"`
	Mint             string `json:"mint"`
	CreatedAt        int64  `json:"createdAt"`
	ExpiresAt        int64  `json:"expiresAt"`
	Status           string `json:"status"`
}

type giftBalanceResult struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

type accountResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type giftEventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleGiftIssue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftIssueParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	issuer, err := parseBech32Address(params.Issuer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	merchant, err := parseBech32Address(params.Merchant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	now := time.Now().Unix()
	if params.ExpiresAt < now-expirySkewSeconds {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", "expiresAt must be in the future")
		return
	}
	name := strings.TrimSpace(params.MerchantName)
	if name == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", "merchantName required")
		return
	}
	if params.Nonce == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", "nonce must be > 0")
		return
	}
	card, err := s.node.GiftCardIssue(issuer, amount, params.ExpiresAt, name, merchant, strings.TrimSpace(params.URI), params.Nonce)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatGiftCardJSON(card))
}

func (s *Server) handleGiftTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftTransferParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := parseCardID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	newOwner, err := parseBech32Address(params.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	card, err := s.node.GiftCardTransfer(id, caller, newOwner)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatGiftCardJSON(card))
}

func (s *Server) handleGiftRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftRedeemParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := parseCardID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	// Omitted amount redeems the full remaining balance.
	var amount *big.Int
	if strings.TrimSpace(params.Amount) != "" {
		amount, err = parsePositiveBigInt(params.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	card, err := s.node.GiftCardRedeem(id, caller, amount)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatGiftCardJSON(card))
}

func (s *Server) handleGiftReclaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftActorParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := parseCardID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	card, err := s.node.GiftCardReclaim(id, caller)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatGiftCardJSON(card))
}

func (s *Server) handleGiftGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftIDParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := parseCardID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	card, err := s.node.GiftCardGet(id)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatGiftCardJSON(card))
}

func (s *Server) handleGiftGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params giftIDParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	id, err := parseCardID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.GiftCardBalance(id)
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, giftBalanceResult{ID: formatCardID(id), Balance: balance.String()})
}

func (s *Server) handleGiftGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr[:])
	if err != nil {
		writeGiftError(w, req.ID, err)
		return
	}
	balance := "0"
	if account.Balance != nil {
		balance = account.Balance.String()
	}
	writeResult(w, req.ID, accountResult{
		Address: crypto.NewAddress(crypto.GiftPrefix, addr[:]).String(),
		Balance: balance,
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleGiftEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	events := s.node.Events()
	out := make([]giftEventJSON, 0, len(events))
	for _, evt := range events {
		out = append(out, giftEventJSON{Type: evt.Type, Attributes: evt.Attributes})
	}
	writeResult(w, req.ID, out)
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeGiftInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func parseBech32Address(addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return decoded.Array(), nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func parseCardID(id string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return out, fmt.Errorf("id required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("id must be 32 bytes")
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], raw)
	return out, nil
}

func formatCardID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}

func formatGiftCardJSON(card *giftcard.GiftCard) giftCardJSON {
	amount := "0"
	if card.Amount != nil {
		amount = card.Amount.String()
	}
	remaining := "0"
	if card.RemainingBalance != nil {
		remaining = card.RemainingBalance.String()
	}
	return giftCardJSON{
		ID:               formatCardID(card.ID),
		Issuer:           crypto.NewAddress(crypto.GiftPrefix, card.Issuer[:]).String(),
		CurrentOwner:     crypto.NewAddress(crypto.GiftPrefix, card.CurrentOwner[:]).String(),
		Merchant:         crypto.NewAddress(crypto.GiftPrefix, card.Merchant[:]).String(),
		MerchantName:     card.MerchantName,
		Amount:           amount,
		RemainingBalance: remaining,
		Mint:             "0x" + hex.EncodeToString(card.Mint[:]),
		CreatedAt:        card.CreatedAt,
		ExpiresAt:        card.ExpiresAt,
		Status:           card.Status.String(),
	}
}

func writeGiftError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeGiftInternal
	message := "internal_error"
	switch {
	case errors.Is(err, giftcard.ErrNotFound):
		status = http.StatusNotFound
		code = codeGiftNotFound
		message = "not_found"
	case errors.Is(err, giftcard.ErrNotCurrentOwner),
		errors.Is(err, giftcard.ErrUnauthorizedMerchant),
		errors.Is(err, giftcard.ErrNotOwnedByMerchant):
		status = http.StatusForbidden
		code = codeGiftForbidden
		message = "forbidden"
	case errors.Is(err, giftcard.ErrNotActive),
		errors.Is(err, giftcard.ErrCardExpired),
		errors.Is(err, giftcard.ErrCardNotExpired),
		errors.Is(err, giftcard.ErrInsufficientBalance),
		errors.Is(err, giftcard.ErrCardExists):
		status = http.StatusConflict
		code = codeGiftConflict
		message = "conflict"
	case errors.Is(err, giftcard.ErrInvalidAmount),
		errors.Is(err, giftcard.ErrInvalidExpiry),
		errors.Is(err, giftcard.ErrNameTooLong):
		status = http.StatusBadRequest
		code = codeGiftInvalidParams
		message = "invalid_params"
	}
	writeError(w, status, id, code, message, err.Error())
}
