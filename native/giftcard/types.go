package giftcard

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MaxMerchantNameLen bounds the display label stored on a card.
const MaxMerchantNameLen = 32

// MetadataSymbol is the fixed symbol registered for every ownership token.
const MetadataSymbol = "GIFTCARD"

// Status represents the lifecycle states of a gift card.
type Status uint8

const (
	StatusActive Status = iota
	StatusRedeemed
	StatusExpired
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRedeemed, StatusExpired:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name used in events and RPC output.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRedeemed:
		return "redeemed"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// GiftCard is the canonical record of a single voucher. The identifier is
// derived from the ownership token mint, so any party holding the mint can
// locate the record without an index. Merchant and Amount never change after
// issuance; RemainingBalance only decreases.
type GiftCard struct {
	ID               [32]byte
	Issuer           [20]byte
	CurrentOwner     [20]byte
	Merchant         [20]byte
	MerchantName     string
	Amount           *big.Int
	RemainingBalance *big.Int
	Mint             [32]byte
	Vault            [20]byte
	CreatedAt        int64
	ExpiresAt        int64
	Status           Status
	// AuthoritySeed proves the record's vault-spending capability is bound to
	// this exact record. It is recomputed, never stored secrets.
	AuthoritySeed [32]byte
}

// Clone returns a deep copy of the card so callers can safely mutate the copy
// without affecting the stored instance.
func (c *GiftCard) Clone() *GiftCard {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if c.RemainingBalance != nil {
		clone.RemainingBalance = new(big.Int).Set(c.RemainingBalance)
	} else {
		clone.RemainingBalance = big.NewInt(0)
	}
	return &clone
}

// TokenMetadata carries the descriptive fields registered against an ownership
// token at issuance. It is informational only; no lifecycle invariant reads it.
type TokenMetadata struct {
	Name    string
	Symbol  string
	URI     string
	Creator [20]byte
}

// DeriveMint computes the deterministic ownership-token identity for an
// issuance request. Binding the issuer, merchant and a caller nonce keeps
// repeated submissions of the same request idempotent.
func DeriveMint(issuer, merchant [20]byte, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash([]byte("giftcard/mint"), issuer[:], merchant[:], nonceBytes[:])
}

// DeriveID computes the storage identity of the card record from its ownership
// token mint, mirroring content-addressed lookup: no registry is consulted.
func DeriveID(mint [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("giftcard/record"), mint[:])
}

// DeriveVaultAuthority computes the capability bound to a card record. The
// state layer recomputes and compares it structurally on every vault debit, so
// no human-held key can release escrowed funds.
func DeriveVaultAuthority(id [32]byte) [32]byte {
	return ethcrypto.Keccak256Hash([]byte("giftcard/vault-authority"), id[:])
}

// Sanitize validates and normalises the supplied card, returning a cloned
// instance with non-nil amounts and a trimmed merchant name. The original
// value is not mutated.
func Sanitize(c *GiftCard) (*GiftCard, error) {
	if c == nil {
		return nil, fmt.Errorf("giftcard: nil card")
	}
	clone := c.Clone()
	clone.MerchantName = strings.TrimSpace(clone.MerchantName)
	if len(clone.MerchantName) > MaxMerchantNameLen {
		return nil, ErrNameTooLong
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("giftcard: negative amount")
	}
	if clone.RemainingBalance.Sign() < 0 {
		return nil, fmt.Errorf("giftcard: negative remaining balance")
	}
	if clone.RemainingBalance.Cmp(clone.Amount) > 0 {
		return nil, fmt.Errorf("giftcard: remaining balance exceeds original amount")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("giftcard: invalid status: %d", clone.Status)
	}
	if clone.Status != StatusActive && clone.RemainingBalance.Sign() != 0 {
		return nil, fmt.Errorf("giftcard: terminal card must have zero balance")
	}
	return clone, nil
}
