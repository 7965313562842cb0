package giftcard

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ShivamSoni20/sol-gift/core/events"
	"github.com/ShivamSoni20/sol-gift/core/types"
)

const testNow int64 = 1_700_000_000

type mockToken struct {
	owner  [20]byte
	burned bool
}

type mockState struct {
	cards         map[[32]byte]*GiftCard
	accounts      map[[20]byte]*types.Account
	vaultBalances map[[32]byte]*big.Int
	tokens        map[[32]byte]*mockToken
	metadata      map[[32]byte]*TokenMetadata
	vaultAddr     [20]byte
}

func newMockState() *mockState {
	return &mockState{
		cards:         make(map[[32]byte]*GiftCard),
		accounts:      make(map[[20]byte]*types.Account),
		vaultBalances: make(map[[32]byte]*big.Int),
		tokens:        make(map[[32]byte]*mockToken),
		metadata:      make(map[[32]byte]*TokenMetadata),
		vaultAddr:     newTestAddress(0xEE),
	}
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func cloneAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	clone := &types.Account{Nonce: acc.Nonce, Balance: big.NewInt(0)}
	if acc.Balance != nil {
		clone.Balance = new(big.Int).Set(acc.Balance)
	}
	return clone
}

func (m *mockState) GiftCardPut(card *GiftCard) error {
	sanitized, err := Sanitize(card)
	if err != nil {
		return err
	}
	m.cards[sanitized.ID] = sanitized.Clone()
	return nil
}

func (m *mockState) GiftCardGet(id [32]byte) (*GiftCard, bool) {
	card, ok := m.cards[id]
	if !ok {
		return nil, false
	}
	return card.Clone(), true
}

func (m *mockState) VaultAddress() [20]byte { return m.vaultAddr }

func (m *mockState) VaultCredit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("invalid credit")
	}
	current := big.NewInt(0)
	if existing, ok := m.vaultBalances[id]; ok && existing != nil {
		current = new(big.Int).Set(existing)
	}
	m.vaultBalances[id] = current.Add(current, amt)
	return nil
}

func (m *mockState) VaultDebit(id [32]byte, authority [32]byte, amt *big.Int) error {
	if authority != DeriveVaultAuthority(id) {
		return fmt.Errorf("vault authority mismatch")
	}
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("invalid debit")
	}
	current := big.NewInt(0)
	if existing, ok := m.vaultBalances[id]; ok && existing != nil {
		current = new(big.Int).Set(existing)
	}
	if current.Cmp(amt) < 0 {
		return fmt.Errorf("insufficient vault balance")
	}
	m.vaultBalances[id] = current.Sub(current, amt)
	return nil
}

func (m *mockState) VaultBalance(id [32]byte) (*big.Int, error) {
	if existing, ok := m.vaultBalances[id]; ok && existing != nil {
		return new(big.Int).Set(existing), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	if acc, ok := m.accounts[key]; ok {
		return cloneAccount(acc), nil
	}
	return cloneAccount(nil), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = cloneAccount(account)
	return nil
}

func (m *mockState) TokenMint(mint [32]byte, to [20]byte) error {
	if _, ok := m.tokens[mint]; ok {
		return fmt.Errorf("token already minted")
	}
	m.tokens[mint] = &mockToken{owner: to}
	return nil
}

func (m *mockState) TokenMove(mint [32]byte, from, to [20]byte) error {
	token, ok := m.tokens[mint]
	if !ok || token.burned {
		return fmt.Errorf("token not available")
	}
	if token.owner != from {
		return fmt.Errorf("token not held by sender")
	}
	token.owner = to
	return nil
}

func (m *mockState) TokenBurn(mint [32]byte, from [20]byte) error {
	token, ok := m.tokens[mint]
	if !ok || token.burned {
		return fmt.Errorf("token not available")
	}
	if token.owner != from {
		return fmt.Errorf("token not held by caller")
	}
	token.burned = true
	return nil
}

func (m *mockState) TokenMetadataPut(mint [32]byte, meta *TokenMetadata) error {
	if meta == nil {
		return fmt.Errorf("nil metadata")
	}
	clone := *meta
	m.metadata[mint] = &clone
	return nil
}

func (m *mockState) setBalance(addr [20]byte, amount int64) {
	m.accounts[addr] = &types.Account{Balance: big.NewInt(amount)}
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	if acc, ok := m.accounts[addr]; ok && acc.Balance != nil {
		return new(big.Int).Set(acc.Balance)
	}
	return big.NewInt(0)
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) lastEvent() *types.Event {
	if len(c.events) == 0 {
		return nil
	}
	wrapper, ok := c.events[len(c.events)-1].(giftCardEvent)
	if !ok {
		return nil
	}
	return wrapper.evt
}

func newTestEngine(state *mockState) (*Engine, *capturingEmitter) {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return testNow })
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	return engine, emitter
}

func issueTestCard(t *testing.T, engine *Engine, state *mockState, issuer, merchant [20]byte, amount int64, expiresAt int64) *GiftCard {
	t.Helper()
	state.setBalance(issuer, amount)
	card, err := engine.Issue(issuer, big.NewInt(amount), expiresAt, "Test Merchant", merchant, "ipfs://card.json", 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return card
}

func TestIssueValidations(t *testing.T) {
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)

	cases := []struct {
		name      string
		amount    *big.Int
		expiresAt int64
		label     string
		wantErr   error
	}{
		{"zero amount", big.NewInt(0), testNow + 1000, "Coffee", ErrInvalidAmount},
		{"negative amount", big.NewInt(-5), testNow + 1000, "Coffee", ErrInvalidAmount},
		{"nil amount", nil, testNow + 1000, "Coffee", ErrInvalidAmount},
		{"expiry in past", big.NewInt(100), testNow - 1, "Coffee", ErrInvalidExpiry},
		{"expiry equals now", big.NewInt(100), testNow, "Coffee", ErrInvalidExpiry},
		{"name too long", big.NewInt(100), testNow + 1000, strings.Repeat("x", 33), ErrNameTooLong},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := newMockState()
			engine, _ := newTestEngine(state)
			state.setBalance(issuer, 1000)

			_, err := engine.Issue(issuer, tc.amount, tc.expiresAt, tc.label, merchant, "", 1)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if got := state.balance(issuer); got.Cmp(big.NewInt(1000)) != 0 {
				t.Fatalf("issuer balance mutated on failed issue: %v", got)
			}
			if len(state.tokens) != 0 {
				t.Fatalf("token minted on failed issue")
			}
			if len(state.cards) != 0 {
				t.Fatalf("card stored on failed issue")
			}
		})
	}
}

func TestIssueSuccess(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	state.setBalance(issuer, 500)

	card, err := engine.Issue(issuer, big.NewInt(100), testNow+1000, "Coffee Shop", merchant, "ipfs://meta.json", 7)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if card.Status != StatusActive {
		t.Fatalf("expected active status, got %v", card.Status)
	}
	if card.Amount.Cmp(big.NewInt(100)) != 0 || card.RemainingBalance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected amounts: %v remaining %v", card.Amount, card.RemainingBalance)
	}
	if card.CurrentOwner != issuer || card.Issuer != issuer {
		t.Fatalf("issuer should hold the new card")
	}
	if card.CreatedAt != testNow || card.ExpiresAt != testNow+1000 {
		t.Fatalf("unexpected timestamps %d/%d", card.CreatedAt, card.ExpiresAt)
	}

	if got := state.balance(issuer); got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("issuer balance not debited: %v", got)
	}
	if got := state.balance(state.vaultAddr); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault account not credited: %v", got)
	}
	vaultBal, err := engine.VaultBalance(card.ID)
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if vaultBal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("vault ledger not credited: %v", vaultBal)
	}

	token, ok := state.tokens[card.Mint]
	if !ok || token.burned || token.owner != issuer {
		t.Fatalf("ownership token not minted to issuer")
	}
	meta, ok := state.metadata[card.Mint]
	if !ok {
		t.Fatalf("metadata not registered")
	}
	if meta.Name != "Gift Card - Coffee Shop" || meta.Symbol != MetadataSymbol || meta.URI != "ipfs://meta.json" {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	evt := emitter.lastEvent()
	if evt == nil || evt.Type != EventTypeIssued {
		t.Fatalf("expected issued event, got %+v", evt)
	}
	if evt.Attributes["amount"] != "100" {
		t.Fatalf("unexpected event amount: %s", evt.Attributes["amount"])
	}
}

func TestIssueIsIdempotent(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	state.setBalance(issuer, 100)

	first, err := engine.Issue(issuer, big.NewInt(100), testNow+500, "Shop", merchant, "uri", 3)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := engine.Issue(issuer, big.NewInt(100), testNow+500, "Shop", merchant, "uri", 3)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same card id on idempotent issue")
	}
	if got := state.balance(issuer); got.Sign() != 0 {
		t.Fatalf("funds must move once, issuer balance %v", got)
	}

	if _, err := engine.Issue(issuer, big.NewInt(200), testNow+500, "Shop", merchant, "uri", 3); !errors.Is(err, ErrCardExists) {
		t.Fatalf("expected ErrCardExists for conflicting definition, got %v", err)
	}
}

func TestIssueInsufficientFunds(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	state.setBalance(issuer, 10)

	if _, err := engine.Issue(issuer, big.NewInt(100), testNow+500, "Shop", merchant, "uri", 1); err == nil {
		t.Fatalf("expected error for underfunded issuer")
	}
	if len(state.cards) != 0 || len(state.tokens) != 0 {
		t.Fatalf("no state should persist after failed funding")
	}
}

func TestTransferUpdatesOwnerOnly(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	buyer := newTestAddress(0x03)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	if err := engine.Transfer(card.ID, issuer, buyer); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.CurrentOwner != buyer {
		t.Fatalf("owner not updated")
	}
	if stored.Merchant != merchant {
		t.Fatalf("merchant must not change on transfer")
	}
	if stored.RemainingBalance.Cmp(big.NewInt(100)) != 0 || stored.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balances must not change on transfer")
	}
	if state.tokens[card.Mint].owner != buyer {
		t.Fatalf("ownership token did not move")
	}

	evt := emitter.lastEvent()
	if evt == nil || evt.Type != EventTypeTransferred {
		t.Fatalf("expected transferred event")
	}
}

func TestTransferByFormerOwnerFails(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	second := newTestAddress(0x03)
	third := newTestAddress(0x04)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	if err := engine.Transfer(card.ID, issuer, second); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := engine.Transfer(card.ID, issuer, third); !errors.Is(err, ErrNotCurrentOwner) {
		t.Fatalf("expected ErrNotCurrentOwner, got %v", err)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.CurrentOwner != second {
		t.Fatalf("failed transfer must not mutate owner")
	}
}

func TestTransferExpiredCardFails(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+10)

	engine.SetNowFunc(func() int64 { return testNow + 10 })
	if err := engine.Transfer(card.ID, issuer, merchant); !errors.Is(err, ErrCardExpired) {
		t.Fatalf("expected ErrCardExpired, got %v", err)
	}
}

func TestRedeemPartialThenFull(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	if err := engine.Transfer(card.ID, issuer, merchant); err != nil {
		t.Fatalf("hand card to merchant: %v", err)
	}

	if err := engine.Redeem(card.ID, merchant, big.NewInt(40)); err != nil {
		t.Fatalf("partial redeem: %v", err)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.RemainingBalance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected remaining 60, got %v", stored.RemainingBalance)
	}
	if stored.Status != StatusActive {
		t.Fatalf("card must stay active after partial redemption")
	}
	if state.tokens[card.Mint].burned {
		t.Fatalf("token must stay alive after partial redemption")
	}
	if got := state.balance(merchant); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("merchant should hold 40, got %v", got)
	}

	evt := emitter.lastEvent()
	if evt == nil || evt.Type != EventTypeRedeemed || evt.Attributes["remainingBalance"] != "60" {
		t.Fatalf("unexpected redeemed event: %+v", evt)
	}

	if err := engine.Redeem(card.ID, merchant, big.NewInt(60)); err != nil {
		t.Fatalf("final redeem: %v", err)
	}
	stored, _ = state.GiftCardGet(card.ID)
	if stored.RemainingBalance.Sign() != 0 {
		t.Fatalf("expected zero remaining, got %v", stored.RemainingBalance)
	}
	if stored.Status != StatusRedeemed {
		t.Fatalf("expected redeemed status, got %v", stored.Status)
	}
	if !state.tokens[card.Mint].burned {
		t.Fatalf("token must burn on full redemption")
	}
	if got := state.balance(merchant); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("merchant should hold 100, got %v", got)
	}

	if err := engine.Redeem(card.ID, merchant, big.NewInt(1)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("redeeming a settled card must fail with ErrNotActive, got %v", err)
	}
}

func TestRedeemDefaultsToFullBalance(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 75, testNow+1000)

	if err := engine.Transfer(card.ID, issuer, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := engine.Redeem(card.ID, merchant, nil); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.Status != StatusRedeemed || stored.RemainingBalance.Sign() != 0 {
		t.Fatalf("nil amount must redeem the full balance")
	}
}

func TestRedeemAuthorization(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	stranger := newTestAddress(0x05)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	// Non-merchant caller is rejected before any balance moves.
	if err := engine.Redeem(card.ID, stranger, big.NewInt(10)); !errors.Is(err, ErrUnauthorizedMerchant) {
		t.Fatalf("expected ErrUnauthorizedMerchant, got %v", err)
	}
	if got := state.balance(stranger); got.Sign() != 0 {
		t.Fatalf("failed redeem must not move funds")
	}

	// The merchant must also hold the ownership token.
	if err := engine.Redeem(card.ID, merchant, big.NewInt(10)); !errors.Is(err, ErrNotOwnedByMerchant) {
		t.Fatalf("expected ErrNotOwnedByMerchant, got %v", err)
	}

	if err := engine.Transfer(card.ID, issuer, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := engine.Redeem(card.ID, merchant, big.NewInt(101)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.RemainingBalance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("over-redemption must not touch balance")
	}
}

func TestRedeemExpiredCardFails(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 50, testNow+1)

	if err := engine.Transfer(card.ID, issuer, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	engine.SetNowFunc(func() int64 { return testNow + 1 })
	if err := engine.Redeem(card.ID, merchant, nil); !errors.Is(err, ErrCardExpired) {
		t.Fatalf("expected ErrCardExpired, got %v", err)
	}
}

func TestReclaimReturnsFundsToIssuer(t *testing.T) {
	state := newMockState()
	engine, emitter := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	holder := newTestAddress(0x03)
	card := issueTestCard(t, engine, state, issuer, merchant, 50, testNow+100)

	if err := engine.Transfer(card.ID, issuer, holder); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := engine.Reclaim(card.ID, holder); !errors.Is(err, ErrCardNotExpired) {
		t.Fatalf("expected ErrCardNotExpired before deadline, got %v", err)
	}

	engine.SetNowFunc(func() int64 { return testNow + 100 })
	if err := engine.Reclaim(card.ID, holder); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.Status != StatusExpired || stored.RemainingBalance.Sign() != 0 {
		t.Fatalf("expected expired card with zero balance")
	}
	if got := state.balance(issuer); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("issuer must receive the reclaimed funds, got %v", got)
	}
	if got := state.balance(holder); got.Sign() != 0 {
		t.Fatalf("caller must not receive reclaimed funds, got %v", got)
	}
	if !state.tokens[card.Mint].burned {
		t.Fatalf("token must burn on reclaim")
	}

	evt := emitter.lastEvent()
	if evt == nil || evt.Type != EventTypeExpired || evt.Attributes["reclaimedAmount"] != "50" {
		t.Fatalf("unexpected expired event: %+v", evt)
	}

	if err := engine.Reclaim(card.ID, holder); !errors.Is(err, ErrNotActive) {
		t.Fatalf("second reclaim must fail with ErrNotActive, got %v", err)
	}
}

func TestReclaimRequiresTokenHolder(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	stranger := newTestAddress(0x06)
	card := issueTestCard(t, engine, state, issuer, merchant, 50, testNow+100)

	engine.SetNowFunc(func() int64 { return testNow + 100 })
	if err := engine.Reclaim(card.ID, stranger); !errors.Is(err, ErrNotCurrentOwner) {
		t.Fatalf("expected ErrNotCurrentOwner, got %v", err)
	}
}

func TestReclaimAfterPartialRedemption(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	// Partially redeem down to 30, transfer the card back, expire, reclaim.
	if err := engine.Transfer(card.ID, issuer, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := engine.Redeem(card.ID, merchant, big.NewInt(70)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	engine.SetNowFunc(func() int64 { return testNow + 1000 })
	if err := engine.Reclaim(card.ID, merchant); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if got := state.balance(issuer); got.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("issuer should recover 30, got %v", got)
	}
}

func TestRedemptionsNeverExceedOriginalAmount(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	if err := engine.Transfer(card.ID, issuer, merchant); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	total := big.NewInt(0)
	for _, amt := range []int64{33, 33, 33, 1} {
		if err := engine.Redeem(card.ID, merchant, big.NewInt(amt)); err != nil {
			t.Fatalf("redeem %d: %v", amt, err)
		}
		total.Add(total, big.NewInt(amt))
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected total redeemed %v", total)
	}
	stored, _ := state.GiftCardGet(card.ID)
	if stored.Status != StatusRedeemed {
		t.Fatalf("exhausting redemption must settle the card")
	}
	if err := engine.Redeem(card.ID, merchant, big.NewInt(1)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after settlement, got %v", err)
	}
}

func TestVaultDebitRejectsForeignAuthority(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)
	card := issueTestCard(t, engine, state, issuer, merchant, 100, testNow+1000)

	var forged [32]byte
	forged[0] = 0xFF
	if err := state.VaultDebit(card.ID, forged, big.NewInt(10)); err == nil {
		t.Fatalf("forged vault authority must be rejected")
	}
	if err := state.VaultDebit(card.ID, DeriveVaultAuthority(card.ID), big.NewInt(10)); err != nil {
		t.Fatalf("record-bound authority must be accepted: %v", err)
	}
}

func TestGetUnknownCard(t *testing.T) {
	state := newMockState()
	engine, _ := newTestEngine(state)
	var id [32]byte
	id[0] = 0xAB
	if _, err := engine.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := engine.VaultBalance(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
