package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	giftNow     = time.Now
	giftRPCCall = callGiftRPC
)

func runGiftCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, giftUsage())
		return 1
	}

	switch args[0] {
	case "issue":
		return runGiftIssue(args[1:], stdout, stderr)
	case "transfer":
		return runGiftTransfer(args[1:], stdout, stderr)
	case "redeem":
		return runGiftRedeem(args[1:], stdout, stderr)
	case "reclaim":
		return runGiftReclaim(args[1:], stdout, stderr)
	case "get":
		return runGiftGet(args[1:], stdout, stderr)
	case "balance":
		return runGiftBalance(args[1:], stdout, stderr)
	case "events":
		return runGiftEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown gift subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, giftUsage())
		return 1
	}
}

func runGiftIssue(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift issue", stderr)
	var (
		issuer       string
		amountStr    string
		expires      string
		merchantName string
		merchant     string
		uri          string
		nonceStr     string
	)
	fs.StringVar(&issuer, "issuer", "", "issuer bech32 address")
	fs.StringVar(&amountStr, "amount", "", "escrowed amount in base units")
	fs.StringVar(&expires, "expires", "", "expiry as +duration or RFC3339 timestamp")
	fs.StringVar(&merchantName, "merchant-name", "", "display name of the merchant")
	fs.StringVar(&merchant, "merchant", "", "merchant bech32 address")
	fs.StringVar(&uri, "uri", "", "optional metadata URI")
	fs.StringVar(&nonceStr, "nonce", "", "unique nonce for this card")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if issuer == "" {
		return printGiftError(stderr, "--issuer is required")
	}
	if amountStr == "" {
		return printGiftError(stderr, "--amount is required")
	}
	if err := validateAmount(amountStr); err != nil {
		return printGiftError(stderr, err.Error())
	}
	if expires == "" {
		return printGiftError(stderr, "--expires is required")
	}
	expiresUnix, err := parseGiftExpiry(expires, giftNow())
	if err != nil {
		return printGiftError(stderr, err.Error())
	}
	if merchantName == "" {
		return printGiftError(stderr, "--merchant-name is required")
	}
	if merchant == "" {
		return printGiftError(stderr, "--merchant is required")
	}
	if nonceStr == "" {
		return printGiftError(stderr, "--nonce is required")
	}
	nonceValue, err := strconv.ParseUint(nonceStr, 10, 64)
	if err != nil || nonceValue == 0 {
		return printGiftError(stderr, "--nonce must be a positive integer")
	}

	params := map[string]interface{}{
		"issuer":       issuer,
		"amount":       amountStr,
		"expiresAt":    expiresUnix,
		"merchantName": merchantName,
		"merchant":     merchant,
		"nonce":        nonceValue,
	}
	if strings.TrimSpace(uri) != "" {
		params["uri"] = uri
	}

	result, rpcErr, err := giftRPCCall("gift_issue", params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runGiftTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift transfer", stderr)
	var (
		id       string
		caller   string
		newOwner string
	)
	fs.StringVar(&id, "id", "", "gift card identifier")
	fs.StringVar(&caller, "caller", "", "current owner address")
	fs.StringVar(&newOwner, "new-owner", "", "recipient address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if err := validateCardID(id); err != nil {
		return printGiftError(stderr, err.Error())
	}
	if caller == "" {
		return printGiftError(stderr, "--caller is required")
	}
	if newOwner == "" {
		return printGiftError(stderr, "--new-owner is required")
	}
	params := map[string]interface{}{"id": id, "caller": caller, "newOwner": newOwner}
	result, rpcErr, err := giftRPCCall("gift_transfer", params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runGiftRedeem(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift redeem", stderr)
	var (
		id        string
		caller    string
		amountStr string
	)
	fs.StringVar(&id, "id", "", "gift card identifier")
	fs.StringVar(&caller, "caller", "", "merchant address redeeming the card")
	fs.StringVar(&amountStr, "amount", "", "amount to redeem (defaults to the full balance)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if err := validateCardID(id); err != nil {
		return printGiftError(stderr, err.Error())
	}
	if caller == "" {
		return printGiftError(stderr, "--caller is required")
	}
	params := map[string]interface{}{"id": id, "caller": caller}
	if strings.TrimSpace(amountStr) != "" {
		if err := validateAmount(amountStr); err != nil {
			return printGiftError(stderr, err.Error())
		}
		params["amount"] = amountStr
	}
	result, rpcErr, err := giftRPCCall("gift_redeem", params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runGiftReclaim(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift reclaim", stderr)
	var (
		id     string
		caller string
	)
	fs.StringVar(&id, "id", "", "gift card identifier")
	fs.StringVar(&caller, "caller", "", "current token holder address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if err := validateCardID(id); err != nil {
		return printGiftError(stderr, err.Error())
	}
	if caller == "" {
		return printGiftError(stderr, "--caller is required")
	}
	params := map[string]interface{}{"id": id, "caller": caller}
	result, rpcErr, err := giftRPCCall("gift_reclaim", params, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runGiftGet(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift get", stderr)
	var id string
	fs.StringVar(&id, "id", "", "gift card identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if err := validateCardID(id); err != nil {
		return printGiftError(stderr, err.Error())
	}
	result, rpcErr, err := giftRPCCall("gift_get", map[string]interface{}{"id": id}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runGiftBalance(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift balance", stderr)
	var id string
	fs.StringVar(&id, "id", "", "gift card identifier")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	if err := validateCardID(id); err != nil {
		return printGiftError(stderr, err.Error())
	}
	result, rpcErr, err := giftRPCCall("gift_getBalance", map[string]interface{}{"id": id}, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runGiftEvents(args []string, stdout, stderr io.Writer) int {
	fs := newGiftFlagSet("gift events", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	result, rpcErr, err := giftRPCCall("gift_events", nil, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func newGiftFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, giftUsage())
	}
	return fs
}

func printGiftError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	if _, err := w.Write(result); err == nil {
		if result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

func giftUsage() string {
	return strings.TrimSpace(`Usage:
  gift-cli <command> [flags]

Commands:
  issue     Issue a new gift card against escrowed funds
  transfer  Transfer card ownership to another account
  redeem    Redeem escrowed funds to the merchant
  reclaim   Reclaim an expired card's balance to the issuer
  get       Fetch gift card details by id
  balance   Fetch a card's remaining balance
  events    List recent gift card events
  new-key   Generate a wallet key and save it to a keystore file
`)
}

func validateCardID(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("--id is required")
	}
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return fmt.Errorf("--id must be a 0x-prefixed 32-byte hex string")
	}
	cleaned := trimmed[2:]
	if len(cleaned) != 64 {
		return fmt.Errorf("--id must be a 0x-prefixed 32-byte hex string")
	}
	if !isHex(cleaned) {
		return fmt.Errorf("--id must contain only hexadecimal characters")
	}
	return nil
}

func validateAmount(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("--amount is required")
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return fmt.Errorf("--amount must be a positive base-10 integer")
		}
	}
	if strings.Trim(trimmed, "0") == "" {
		return fmt.Errorf("--amount must be greater than zero")
	}
	return nil
}

func isHex(value string) bool {
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func parseGiftExpiry(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("--expires is required")
	}
	if strings.HasPrefix(trimmed, "+") {
		durationStr := strings.TrimSpace(trimmed[1:])
		if durationStr == "" {
			return 0, fmt.Errorf("invalid expiry duration")
		}
		dur, err := time.ParseDuration(durationStr)
		if err != nil {
			return 0, fmt.Errorf("invalid expiry duration")
		}
		if dur <= 0 {
			return 0, fmt.Errorf("expiry duration must be positive")
		}
		return now.Add(dur).Unix(), nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid RFC3339 expiry")
	}
	return ts.Unix(), nil
}
