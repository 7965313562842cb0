package giftcard

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ShivamSoni20/sol-gift/core/events"
	"github.com/ShivamSoni20/sol-gift/core/types"
)

var errNilState = errors.New("giftcard engine: state not configured")

// engineState is the narrow view of ledger state the lifecycle engine needs.
// The value-transfer, ownership-token and metadata primitives are collaborators
// behind this interface; the engine never touches storage directly.
type engineState interface {
	GiftCardPut(*GiftCard) error
	GiftCardGet(id [32]byte) (*GiftCard, bool)

	VaultAddress() [20]byte
	VaultCredit(id [32]byte, amt *big.Int) error
	VaultDebit(id [32]byte, authority [32]byte, amt *big.Int) error
	VaultBalance(id [32]byte) (*big.Int, error)

	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error

	TokenMint(mint [32]byte, to [20]byte) error
	TokenMove(mint [32]byte, from, to [20]byte) error
	TokenBurn(mint [32]byte, from [20]byte) error
	TokenMetadataPut(mint [32]byte, meta *TokenMetadata) error
}

type giftCardEvent struct {
	evt *types.Event
}

func (e giftCardEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e giftCardEvent) Event() *types.Event { return e.evt }

// Engine wires the gift-card lifecycle logic with external state and event
// emitters. Every transition validates all preconditions before touching a
// balance or token, so a failed call leaves no observable side effect when the
// surrounding state commit is discarded.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a gift-card engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(giftCardEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadCard(id [32]byte) (*GiftCard, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	card, ok := e.state.GiftCardGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return card, nil
}

func (e *Engine) storeCard(card *GiftCard) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.GiftCardPut(card)
}

// transferValue moves fungible balance between two ledger accounts, failing
// when the source does not cover the amount.
func (e *Engine) transferValue(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("giftcard: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("giftcard: insufficient account balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// Issue locks amount from the issuer's balance in the card vault, mints the
// ownership token to the issuer and persists the new card record. Repeating an
// identical request is idempotent and returns the stored card without moving
// funds again.
func (e *Engine) Issue(issuer [20]byte, amount *big.Int, expiresAt int64, merchantName string, merchant [20]byte, uri string, nonce uint64) (*GiftCard, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if expiresAt <= now {
		return nil, ErrInvalidExpiry
	}
	if len(merchantName) > MaxMerchantNameLen {
		return nil, ErrNameTooLong
	}

	mint := DeriveMint(issuer, merchant, nonce)
	id := DeriveID(mint)
	if existing, ok := e.state.GiftCardGet(id); ok {
		if existing.Issuer != issuer || existing.Merchant != merchant || existing.Amount.Cmp(amt) != 0 || existing.ExpiresAt != expiresAt || existing.MerchantName != merchantName {
			return nil, ErrCardExists
		}
		return existing, nil
	}

	vault := e.state.VaultAddress()
	if err := e.transferValue(issuer, vault, amt); err != nil {
		return nil, err
	}
	if err := e.state.VaultCredit(id, amt); err != nil {
		return nil, err
	}
	if err := e.state.TokenMint(mint, issuer); err != nil {
		return nil, err
	}
	if err := e.state.TokenMetadataPut(mint, &TokenMetadata{
		Name:    "Gift Card - " + merchantName,
		Symbol:  MetadataSymbol,
		URI:     uri,
		Creator: issuer,
	}); err != nil {
		return nil, err
	}

	card := &GiftCard{
		ID:               id,
		Issuer:           issuer,
		CurrentOwner:     issuer,
		Merchant:         merchant,
		MerchantName:     merchantName,
		Amount:           amt,
		RemainingBalance: cloneBigInt(amt),
		Mint:             mint,
		Vault:            vault,
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
		Status:           StatusActive,
		AuthoritySeed:    DeriveVaultAuthority(id),
	}
	if err := e.storeCard(card); err != nil {
		return nil, err
	}
	e.emit(NewIssuedEvent(card))
	return card.Clone(), nil
}

// Transfer conveys title to newOwner. Only the current owner may transfer, and
// only while the card is active and unexpired. Balance, merchant and escrow are
// untouched; transfer moves the ownership token and nothing else.
func (e *Engine) Transfer(id [32]byte, caller, newOwner [20]byte) error {
	card, err := e.loadCard(id)
	if err != nil {
		return err
	}
	if card.Status != StatusActive {
		return ErrNotActive
	}
	if e.now() >= card.ExpiresAt {
		return ErrCardExpired
	}
	if caller != card.CurrentOwner {
		return ErrNotCurrentOwner
	}
	if err := e.state.TokenMove(card.Mint, caller, newOwner); err != nil {
		return err
	}
	from := card.CurrentOwner
	card.CurrentOwner = newOwner
	if err := e.storeCard(card); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(card, from, newOwner))
	return nil
}

// Redeem releases amount (nil means the full remaining balance) from the card
// vault to the merchant and decrements the remaining balance. Redemption is a
// role right bound to the fixed merchant identity, not to whoever holds title;
// in addition the merchant must currently hold the ownership token, proving
// the card was presented. A redemption that exhausts the balance burns the
// token and freezes the card as redeemed.
func (e *Engine) Redeem(id [32]byte, caller [20]byte, amount *big.Int) error {
	card, err := e.loadCard(id)
	if err != nil {
		return err
	}
	if card.Status != StatusActive {
		return ErrNotActive
	}
	if e.now() >= card.ExpiresAt {
		return ErrCardExpired
	}
	if caller != card.Merchant {
		return ErrUnauthorizedMerchant
	}
	if card.CurrentOwner != card.Merchant {
		return ErrNotOwnedByMerchant
	}
	redeemAmt := cloneBigInt(card.RemainingBalance)
	if amount != nil {
		redeemAmt = cloneBigInt(amount)
	}
	if redeemAmt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if redeemAmt.Cmp(card.RemainingBalance) > 0 {
		return ErrInsufficientBalance
	}

	// The vault debit carries the record-bound authority, never the
	// merchant's signing identity.
	if err := e.transferValue(card.Vault, card.Merchant, redeemAmt); err != nil {
		return err
	}
	if err := e.state.VaultDebit(card.ID, card.AuthoritySeed, redeemAmt); err != nil {
		return err
	}
	card.RemainingBalance = new(big.Int).Sub(card.RemainingBalance, redeemAmt)
	if card.RemainingBalance.Sign() == 0 {
		if err := e.state.TokenBurn(card.Mint, card.Merchant); err != nil {
			return err
		}
		card.Status = StatusRedeemed
	}
	if err := e.storeCard(card); err != nil {
		return err
	}
	e.emit(NewRedeemedEvent(card, redeemAmt))
	return nil
}

// Reclaim settles an expired card: any remaining balance returns to the
// issuer, the ownership token is burned and the card freezes as expired. The
// current token holder presents the card for closure; the payout destination
// is always the issuer regardless of caller.
func (e *Engine) Reclaim(id [32]byte, caller [20]byte) error {
	card, err := e.loadCard(id)
	if err != nil {
		return err
	}
	if card.Status != StatusActive {
		return ErrNotActive
	}
	if e.now() < card.ExpiresAt {
		return ErrCardNotExpired
	}
	if caller != card.CurrentOwner {
		return ErrNotCurrentOwner
	}
	reclaimed := cloneBigInt(card.RemainingBalance)
	if reclaimed.Sign() > 0 {
		if err := e.transferValue(card.Vault, card.Issuer, reclaimed); err != nil {
			return err
		}
		if err := e.state.VaultDebit(card.ID, card.AuthoritySeed, reclaimed); err != nil {
			return err
		}
	}
	if err := e.state.TokenBurn(card.Mint, caller); err != nil {
		return err
	}
	card.RemainingBalance = big.NewInt(0)
	card.Status = StatusExpired
	if err := e.storeCard(card); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(card, reclaimed))
	return nil
}

// Get returns the stored card record.
func (e *Engine) Get(id [32]byte) (*GiftCard, error) {
	return e.loadCard(id)
}

// VaultBalance reports the funds currently escrowed for the card.
func (e *Engine) VaultBalance(id [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok := e.state.GiftCardGet(id); !ok {
		return nil, ErrNotFound
	}
	return e.state.VaultBalance(id)
}
