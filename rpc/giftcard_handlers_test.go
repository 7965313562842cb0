package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ShivamSoni20/sol-gift/core"
	"github.com/ShivamSoni20/sol-gift/crypto"
	"github.com/ShivamSoni20/sol-gift/storage"
)

// The issue handler validates expiry against the wall clock, so the test
// clock is pinned to process start rather than a fixed constant.
var rpcTestNow = time.Now().Unix()

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	node := core.NewNode(storage.NewMemDB())
	node.SetNowFunc(func() int64 { return rpcTestNow })
	server := &Server{
		node:         node,
		rateLimiters: make(map[string]*rateLimiter),
		authToken:    "test-token",
	}
	return server, node
}

func rpcAddr(fill byte) ([20]byte, string) {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr, crypto.NewAddress(crypto.GiftPrefix, addr[:]).String()
}

func doRPC(t *testing.T, server *Server, method string, params interface{}, authed bool) (*RPCResponse, int) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		payload["params"] = []json.RawMessage{raw}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	rec := httptest.NewRecorder()
	server.handle(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, rec.Body.String())
	}
	return resp, rec.Code
}

func issueViaRPC(t *testing.T, server *Server, node *core.Node, issuerFill, merchantFill byte, amount int64) giftCardJSON {
	t.Helper()
	issuer, issuerStr := rpcAddr(issuerFill)
	_, merchantStr := rpcAddr(merchantFill)
	if err := node.SetAccountBalance(issuer[:], big.NewInt(amount)); err != nil {
		t.Fatalf("fund issuer: %v", err)
	}

	resp, status := doRPC(t, server, "gift_issue", giftIssueParams{
		Issuer:       issuerStr,
		Amount:       fmt.Sprintf("%d", amount),
		ExpiresAt:    rpcTestNow + 3600,
		MerchantName: "Coffee Shop",
		Merchant:     merchantStr,
		Nonce:        1,
	}, true)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("issue failed: status %d error %+v", status, resp.Error)
	}
	return decodeCard(t, resp.Result)
}

func decodeCard(t *testing.T, result interface{}) giftCardJSON {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	var card giftCardJSON
	if err := json.Unmarshal(raw, &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	return card
}

func TestWriteMethodsRequireAuth(t *testing.T) {
	server, _ := newTestServer(t)
	_, merchantStr := rpcAddr(0x02)
	_, issuerStr := rpcAddr(0x01)

	resp, status := doRPC(t, server, "gift_issue", giftIssueParams{
		Issuer:       issuerStr,
		Amount:       "100",
		ExpiresAt:    rpcTestNow + 3600,
		MerchantName: "Shop",
		Merchant:     merchantStr,
		Nonce:        1,
	}, false)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}
}

func TestIssueAndGetOverRPC(t *testing.T) {
	server, node := newTestServer(t)
	card := issueViaRPC(t, server, node, 0x01, 0x02, 100)

	if card.Status != "active" || card.Amount != "100" || card.RemainingBalance != "100" {
		t.Fatalf("unexpected issue result %+v", card)
	}
	if card.MerchantName != "Coffee Shop" {
		t.Fatalf("unexpected merchant name %q", card.MerchantName)
	}

	resp, status := doRPC(t, server, "gift_get", giftIDParams{ID: card.ID}, false)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("get failed: %d %+v", status, resp.Error)
	}
	fetched := decodeCard(t, resp.Result)
	if fetched.ID != card.ID || fetched.Status != "active" {
		t.Fatalf("unexpected fetched card %+v", fetched)
	}

	resp, status = doRPC(t, server, "gift_getBalance", giftIDParams{ID: card.ID}, false)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("balance failed: %d %+v", status, resp.Error)
	}
}

func TestIssueValidatesParams(t *testing.T) {
	server, _ := newTestServer(t)
	_, issuerStr := rpcAddr(0x01)
	_, merchantStr := rpcAddr(0x02)

	cases := []struct {
		name   string
		params giftIssueParams
	}{
		{"zero amount", giftIssueParams{Issuer: issuerStr, Amount: "0", ExpiresAt: rpcTestNow + 3600, MerchantName: "Shop", Merchant: merchantStr, Nonce: 1}},
		{"bad address", giftIssueParams{Issuer: "nope", Amount: "10", ExpiresAt: rpcTestNow + 3600, MerchantName: "Shop", Merchant: merchantStr, Nonce: 1}},
		{"missing name", giftIssueParams{Issuer: issuerStr, Amount: "10", ExpiresAt: rpcTestNow + 3600, Merchant: merchantStr, Nonce: 1}},
		{"zero nonce", giftIssueParams{Issuer: issuerStr, Amount: "10", ExpiresAt: rpcTestNow + 3600, MerchantName: "Shop", Merchant: merchantStr}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, status := doRPC(t, server, "gift_issue", tc.params, true)
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", status)
			}
			if resp.Error == nil || resp.Error.Code != codeGiftInvalidParams {
				t.Fatalf("expected invalid_params, got %+v", resp.Error)
			}
		})
	}
}

func TestRedeemByStrangerIsForbidden(t *testing.T) {
	server, node := newTestServer(t)
	card := issueViaRPC(t, server, node, 0x01, 0x02, 100)
	_, strangerStr := rpcAddr(0x05)

	resp, status := doRPC(t, server, "gift_redeem", giftRedeemParams{
		ID:     card.ID,
		Caller: strangerStr,
		Amount: "10",
	}, true)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
	if resp.Error == nil || resp.Error.Code != codeGiftForbidden {
		t.Fatalf("expected forbidden, got %+v", resp.Error)
	}
}

func TestTransferAndRedeemOverRPC(t *testing.T) {
	server, node := newTestServer(t)
	card := issueViaRPC(t, server, node, 0x01, 0x02, 100)
	_, issuerStr := rpcAddr(0x01)
	_, merchantStr := rpcAddr(0x02)

	resp, status := doRPC(t, server, "gift_transfer", giftTransferParams{
		ID:       card.ID,
		Caller:   issuerStr,
		NewOwner: merchantStr,
	}, true)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("transfer failed: %d %+v", status, resp.Error)
	}
	moved := decodeCard(t, resp.Result)
	if moved.CurrentOwner != merchantStr {
		t.Fatalf("owner not updated: %+v", moved)
	}

	resp, status = doRPC(t, server, "gift_redeem", giftRedeemParams{
		ID:     card.ID,
		Caller: merchantStr,
		Amount: "40",
	}, true)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("redeem failed: %d %+v", status, resp.Error)
	}
	redeemed := decodeCard(t, resp.Result)
	if redeemed.RemainingBalance != "60" || redeemed.Status != "active" {
		t.Fatalf("unexpected redeem result %+v", redeemed)
	}

	// Full settlement with amount omitted.
	resp, status = doRPC(t, server, "gift_redeem", giftRedeemParams{
		ID:     card.ID,
		Caller: merchantStr,
	}, true)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("final redeem failed: %d %+v", status, resp.Error)
	}
	settled := decodeCard(t, resp.Result)
	if settled.Status != "redeemed" || settled.RemainingBalance != "0" {
		t.Fatalf("unexpected settlement %+v", settled)
	}
}

func TestGetUnknownCardReturnsNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	resp, status := doRPC(t, server, "gift_get", giftIDParams{
		ID: "0x00000000000000000000000000000000000000000000000000000000000000aa",
	}, false)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if resp.Error == nil || resp.Error.Code != codeGiftNotFound {
		t.Fatalf("expected not_found, got %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	server, _ := newTestServer(t)
	resp, status := doRPC(t, server, "gift_doesNotExist", nil, false)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestEventsOverRPC(t *testing.T) {
	server, node := newTestServer(t)
	issueViaRPC(t, server, node, 0x01, 0x02, 100)

	resp, status := doRPC(t, server, "gift_events", nil, false)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("events failed: %d %+v", status, resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var events []giftEventJSON
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "giftcard.issued" {
		t.Fatalf("unexpected events %+v", events)
	}
}
