package giftcard

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func TestDerivationsAreDeterministic(t *testing.T) {
	issuer := newTestAddress(0x01)
	merchant := newTestAddress(0x02)

	mint := DeriveMint(issuer, merchant, 7)
	if mint != DeriveMint(issuer, merchant, 7) {
		t.Fatalf("mint derivation must be deterministic")
	}
	if mint == DeriveMint(issuer, merchant, 8) {
		t.Fatalf("different nonce must yield a different mint")
	}
	if mint == DeriveMint(merchant, issuer, 7) {
		t.Fatalf("swapped parties must yield a different mint")
	}

	id := DeriveID(mint)
	if id == mint {
		t.Fatalf("record id must differ from the mint")
	}
	if DeriveVaultAuthority(id) == DeriveVaultAuthority(DeriveID(DeriveMint(issuer, merchant, 8))) {
		t.Fatalf("vault authority must be record-bound")
	}
}

func TestCloneIsDeep(t *testing.T) {
	card := &GiftCard{
		MerchantName:     "Shop",
		Amount:           big.NewInt(100),
		RemainingBalance: big.NewInt(40),
		Status:           StatusActive,
	}
	clone := card.Clone()
	clone.Amount.SetInt64(5)
	clone.RemainingBalance.SetInt64(5)
	if card.Amount.Cmp(big.NewInt(100)) != 0 || card.RemainingBalance.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("clone must not alias amounts")
	}
	if (*GiftCard)(nil).Clone() != nil {
		t.Fatalf("nil card clones to nil")
	}
}

func TestSanitize(t *testing.T) {
	base := func() *GiftCard {
		return &GiftCard{
			MerchantName:     "  Shop  ",
			Amount:           big.NewInt(100),
			RemainingBalance: big.NewInt(100),
			Status:           StatusActive,
		}
	}

	clean, err := Sanitize(base())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if clean.MerchantName != "Shop" {
		t.Fatalf("merchant name should be trimmed, got %q", clean.MerchantName)
	}

	cases := []struct {
		name   string
		mutate func(*GiftCard)
	}{
		{"name too long", func(c *GiftCard) { c.MerchantName = strings.Repeat("x", 33) }},
		{"negative amount", func(c *GiftCard) { c.Amount = big.NewInt(-1) }},
		{"negative remaining", func(c *GiftCard) { c.RemainingBalance = big.NewInt(-1) }},
		{"remaining above amount", func(c *GiftCard) { c.RemainingBalance = big.NewInt(101) }},
		{"invalid status", func(c *GiftCard) { c.Status = Status(9) }},
		{"redeemed with balance", func(c *GiftCard) { c.Status = StatusRedeemed }},
		{"expired with balance", func(c *GiftCard) { c.Status = StatusExpired }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card := base()
			tc.mutate(card)
			if _, err := Sanitize(card); err == nil {
				t.Fatalf("expected sanitize error")
			}
		})
	}

	if _, err := Sanitize(nil); err == nil {
		t.Fatalf("nil card must be rejected")
	}

	nameErrCard := base()
	nameErrCard.MerchantName = strings.Repeat("y", 40)
	if _, err := Sanitize(nameErrCard); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("expected ErrNameTooLong, got %v", err)
	}
}

func TestStatusStrings(t *testing.T) {
	if StatusActive.String() != "active" || StatusRedeemed.String() != "redeemed" || StatusExpired.String() != "expired" {
		t.Fatalf("unexpected status strings")
	}
	if Status(42).String() != "unknown" {
		t.Fatalf("out-of-range status must print unknown")
	}
	if Status(42).Valid() {
		t.Fatalf("out-of-range status must be invalid")
	}
}
