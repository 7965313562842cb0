package giftcard

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ShivamSoni20/sol-gift/core/types"
)

const (
	EventTypeIssued      = "giftcard.issued"
	EventTypeTransferred = "giftcard.transferred"
	EventTypeRedeemed    = "giftcard.redeemed"
	EventTypeExpired     = "giftcard.expired"
)

// NewIssuedEvent returns the canonical event payload for a newly issued card.
func NewIssuedEvent(card *GiftCard) *types.Event {
	attrs := baseAttributes(card)
	if card != nil {
		attrs["issuer"] = hex.EncodeToString(card.Issuer[:])
		attrs["merchant"] = hex.EncodeToString(card.Merchant[:])
		attrs["amount"] = bigIntString(card.Amount)
		attrs["expiresAt"] = strconv.FormatInt(card.ExpiresAt, 10)
	}
	return &types.Event{Type: EventTypeIssued, Attributes: attrs}
}

// NewTransferredEvent returns the canonical event payload emitted when title
// moves between owners.
func NewTransferredEvent(card *GiftCard, from, to [20]byte) *types.Event {
	attrs := baseAttributes(card)
	attrs["from"] = hex.EncodeToString(from[:])
	attrs["to"] = hex.EncodeToString(to[:])
	return &types.Event{Type: EventTypeTransferred, Attributes: attrs}
}

// NewRedeemedEvent returns the canonical event payload for a partial or full
// redemption.
func NewRedeemedEvent(card *GiftCard, amount *big.Int) *types.Event {
	attrs := baseAttributes(card)
	attrs["amount"] = bigIntString(amount)
	if card != nil {
		attrs["merchant"] = hex.EncodeToString(card.Merchant[:])
		attrs["remainingBalance"] = bigIntString(card.RemainingBalance)
	}
	return &types.Event{Type: EventTypeRedeemed, Attributes: attrs}
}

// NewExpiredEvent returns the canonical event payload emitted when an expired
// card is settled back to its issuer.
func NewExpiredEvent(card *GiftCard, reclaimed *big.Int) *types.Event {
	attrs := baseAttributes(card)
	attrs["reclaimedAmount"] = bigIntString(reclaimed)
	if card != nil {
		attrs["issuer"] = hex.EncodeToString(card.Issuer[:])
	}
	return &types.Event{Type: EventTypeExpired, Attributes: attrs}
}

func baseAttributes(card *GiftCard) map[string]string {
	attrs := make(map[string]string)
	if card == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(card.ID[:])
	attrs["mint"] = hex.EncodeToString(card.Mint[:])
	attrs["status"] = card.Status.String()
	return attrs
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
