package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// GiftCardState mirrors the node's gift card payload.
type GiftCardState struct {
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

// IssueRequest carries the parameters for minting a new gift card.
type IssueRequest struct {
	Issuer       string `json:"issuer"`
	Amount       string `json:"amount"`
	ExpiresAt    int64  `json:"expiresAt"`
	MerchantName string `json:"merchantName"`
	Merchant     string `json:"merchant"`
	URI          string `json:"uri,omitempty"`
	Nonce        uint64 `json:"nonce"`
}

// NodeClient is the subset of node RPC operations the gateway invokes.
type NodeClient interface {
	GiftIssue(ctx context.Context, req IssueRequest) (*GiftCardState, error)
	GiftTransfer(ctx context.Context, id, caller, newOwner string) (*GiftCardState, error)
	GiftRedeem(ctx context.Context, id, caller, amount string) (*GiftCardState, error)
	GiftReclaim(ctx context.Context, id, caller string) (*GiftCardState, error)
	GiftGet(ctx context.Context, id string) (*GiftCardState, error)
}

// NodeError carries a JSON-RPC error returned by the node.
type NodeError struct {
	Code    int
	Message string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// RPCNodeClient speaks JSON-RPC to a gift network node.
type RPCNodeClient struct {
	url        string
	authToken  string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewRPCNodeClient builds a client for the node at url. The token, when
// non-empty, is sent as a bearer credential on write methods.
func NewRPCNodeClient(url, token string) *RPCNodeClient {
	return &RPCNodeClient{
		url:       url,
		authToken: token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	defer resp.Body.Close()

	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if decoded.Error != nil {
		return &NodeError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if out != nil {
		if err := json.Unmarshal(decoded.Result, out); err != nil {
			return fmt.Errorf("decode rpc result: %w", err)
		}
	}
	return nil
}

// GiftIssue mints a new gift card.
func (c *RPCNodeClient) GiftIssue(ctx context.Context, req IssueRequest) (*GiftCardState, error) {
	var card GiftCardState
	if err := c.call(ctx, "gift_issue", req, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GiftTransfer moves card ownership to newOwner.
func (c *RPCNodeClient) GiftTransfer(ctx context.Context, id, caller, newOwner string) (*GiftCardState, error) {
	params := struct {
		ID       string `json:"id"`
		Caller   string `json:"caller"`
		NewOwner string `json:"newOwner"`
	}{ID: id, Caller: caller, NewOwner: newOwner}
	var card GiftCardState
	if err := c.call(ctx, "gift_transfer", params, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GiftRedeem releases escrowed funds to the merchant. An empty amount redeems
// the full remaining balance.
func (c *RPCNodeClient) GiftRedeem(ctx context.Context, id, caller, amount string) (*GiftCardState, error) {
	params := struct {
		ID     string `json:"id"`
		Caller string `json:"caller"`
		Amount string `json:"amount,omitempty"`
	}{ID: id, Caller: caller, Amount: amount}
	var card GiftCardState
	if err := c.call(ctx, "gift_redeem", params, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GiftReclaim returns the remaining balance of an expired card to its issuer.
func (c *RPCNodeClient) GiftReclaim(ctx context.Context, id, caller string) (*GiftCardState, error) {
	params := struct {
		ID     string `json:"id"`
		Caller string `json:"caller"`
	}{ID: id, Caller: caller}
	var card GiftCardState
	if err := c.call(ctx, "gift_reclaim", params, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GiftGet fetches the current state of a card.
func (c *RPCNodeClient) GiftGet(ctx context.Context, id string) (*GiftCardState, error) {
	var card GiftCardState
	if err := c.call(ctx, "gift_get", struct {
		ID string `json:"id"`
	}{ID: id}, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
