package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ShivamSoni20/sol-gift/core/types"
	"github.com/ShivamSoni20/sol-gift/native/giftcard"
	"github.com/ShivamSoni20/sol-gift/storage"
)

// Key namespaces. Every key is the keccak hash of its prefix plus the raw
// identifier, so the underlying store only ever sees fixed-width opaque keys.
const (
	accountPrefix  = "giftnet/account/"
	cardPrefix     = "giftnet/card/"
	vaultPrefix    = "giftnet/vault/"
	tokenPrefix    = "giftnet/token/"
	metadataPrefix = "giftnet/token-meta/"
)

// moduleVaultSeed derives the single module-owned account that escrows every
// card's funds. Per-card accounting lives under vaultPrefix.
const moduleVaultSeed = "giftcard/module/vault"

// storedAccount is the persisted shape of a ledger account.
type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

// storedGiftCard mirrors giftcard.GiftCard for persistence. Timestamps are
// widened to uint64 because the wire codec rejects signed integers.
type storedGiftCard struct {
	ID               [32]byte
	Issuer           [20]byte
	CurrentOwner     [20]byte
	Merchant         [20]byte
	MerchantName     string
	Amount           *big.Int
	RemainingBalance *big.Int
	Mint             [32]byte
	Vault            [20]byte
	CreatedAt        uint64
	ExpiresAt        uint64
	Status           uint8
	AuthoritySeed    [32]byte
}

type storedToken struct {
	Owner  [20]byte
	Burned bool
}

type storedMetadata struct {
	Name    string
	Symbol  string
	URI     string
	Creator [20]byte
}

// Manager provides typed access to gift-card ledger state. All writes land in
// an in-memory overlay and only reach the database when Commit is called, so a
// failed transition can be abandoned without leaving partial effects behind.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
	}
}

func accountKey(addr []byte) []byte {
	return ethcrypto.Keccak256([]byte(accountPrefix), addr)
}

func cardKey(id [32]byte) []byte {
	return ethcrypto.Keccak256([]byte(cardPrefix), id[:])
}

func vaultKey(id [32]byte) []byte {
	return ethcrypto.Keccak256([]byte(vaultPrefix), id[:])
}

func tokenKey(mint [32]byte) []byte {
	return ethcrypto.Keccak256([]byte(tokenPrefix), mint[:])
}

func metadataKey(mint [32]byte) []byte {
	return ethcrypto.Keccak256([]byte(metadataPrefix), mint[:])
}

func (m *Manager) read(key []byte) ([]byte, error) {
	if value, ok := m.overlay[string(key)]; ok {
		if value == nil {
			return nil, nil
		}
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	}
	return m.db.Get(key)
}

func (m *Manager) write(key, value []byte) {
	buf := make([]byte, len(value))
	copy(buf, value)
	m.overlay[string(key)] = buf
}

// Commit flushes the overlay atomically to the database and clears it.
func (m *Manager) Commit() error {
	if len(m.overlay) == 0 {
		return nil
	}
	batch := m.db.NewBatch()
	for key, value := range m.overlay {
		batch.Put([]byte(key), value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// GetAccount loads the account for addr, returning a zero-balance account when
// none has been stored yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.read(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	var stored storedAccount
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	balance := stored.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	return &types.Account{Nonce: stored.Nonce, Balance: balance}, nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	data, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	m.write(accountKey(addr), data)
	return nil
}

// GiftCardPut validates and persists a card record.
func (m *Manager) GiftCardPut(card *giftcard.GiftCard) error {
	sanitized, err := giftcard.Sanitize(card)
	if err != nil {
		return err
	}
	if sanitized.CreatedAt < 0 || sanitized.ExpiresAt < 0 {
		return fmt.Errorf("state: negative timestamp")
	}
	stored := &storedGiftCard{
		ID:               sanitized.ID,
		Issuer:           sanitized.Issuer,
		CurrentOwner:     sanitized.CurrentOwner,
		Merchant:         sanitized.Merchant,
		MerchantName:     sanitized.MerchantName,
		Amount:           sanitized.Amount,
		RemainingBalance: sanitized.RemainingBalance,
		Mint:             sanitized.Mint,
		Vault:            sanitized.Vault,
		CreatedAt:        uint64(sanitized.CreatedAt),
		ExpiresAt:        uint64(sanitized.ExpiresAt),
		Status:           uint8(sanitized.Status),
		AuthoritySeed:    sanitized.AuthoritySeed,
	}
	data, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return fmt.Errorf("state: encode card: %w", err)
	}
	m.write(cardKey(sanitized.ID), data)
	return nil
}

// GiftCardGet loads the card record for id. The second return reports whether
// a record exists.
func (m *Manager) GiftCardGet(id [32]byte) (*giftcard.GiftCard, bool) {
	data, err := m.read(cardKey(id))
	if err != nil || data == nil {
		return nil, false
	}
	var stored storedGiftCard
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false
	}
	card := &giftcard.GiftCard{
		ID:               stored.ID,
		Issuer:           stored.Issuer,
		CurrentOwner:     stored.CurrentOwner,
		Merchant:         stored.Merchant,
		MerchantName:     stored.MerchantName,
		Amount:           stored.Amount,
		RemainingBalance: stored.RemainingBalance,
		Mint:             stored.Mint,
		Vault:            stored.Vault,
		CreatedAt:        int64(stored.CreatedAt),
		ExpiresAt:        int64(stored.ExpiresAt),
		Status:           giftcard.Status(stored.Status),
		AuthoritySeed:    stored.AuthoritySeed,
	}
	if card.Amount == nil {
		card.Amount = big.NewInt(0)
	}
	if card.RemainingBalance == nil {
		card.RemainingBalance = big.NewInt(0)
	}
	return card, true
}

// VaultAddress returns the module-owned account that escrows card funds.
func (m *Manager) VaultAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(moduleVaultSeed))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

func (m *Manager) vaultBalance(id [32]byte) (*big.Int, error) {
	data, err := m.read(vaultKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, fmt.Errorf("state: decode vault balance: %w", err)
	}
	return balance, nil
}

func (m *Manager) putVaultBalance(id [32]byte, balance *big.Int) error {
	data, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("state: encode vault balance: %w", err)
	}
	m.write(vaultKey(id), data)
	return nil
}

// VaultCredit adds amt to the per-card escrow ledger.
func (m *Manager) VaultCredit(id [32]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid vault credit")
	}
	balance, err := m.vaultBalance(id)
	if err != nil {
		return err
	}
	return m.putVaultBalance(id, new(big.Int).Add(balance, amt))
}

// VaultDebit removes amt from the per-card escrow ledger. The caller must
// present the capability derived from the card record itself; any other value
// is rejected, so escrowed funds cannot be released by an external key.
func (m *Manager) VaultDebit(id [32]byte, authority [32]byte, amt *big.Int) error {
	if authority != giftcard.DeriveVaultAuthority(id) {
		return fmt.Errorf("state: vault authority mismatch")
	}
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid vault debit")
	}
	balance, err := m.vaultBalance(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: vault balance below debit")
	}
	return m.putVaultBalance(id, new(big.Int).Sub(balance, amt))
}

// VaultBalance reports the funds escrowed for the card.
func (m *Manager) VaultBalance(id [32]byte) (*big.Int, error) {
	return m.vaultBalance(id)
}

func (m *Manager) loadToken(mint [32]byte) (*storedToken, error) {
	data, err := m.read(tokenKey(mint))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var token storedToken
	if err := rlp.DecodeBytes(data, &token); err != nil {
		return nil, fmt.Errorf("state: decode token: %w", err)
	}
	return &token, nil
}

func (m *Manager) putToken(mint [32]byte, token *storedToken) error {
	data, err := rlp.EncodeToBytes(token)
	if err != nil {
		return fmt.Errorf("state: encode token: %w", err)
	}
	m.write(tokenKey(mint), data)
	return nil
}

// TokenMint registers a new ownership token held by to. A mint identity can
// only ever be registered once, even after the token is burned.
func (m *Manager) TokenMint(mint [32]byte, to [20]byte) error {
	existing, err := m.loadToken(mint)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("state: token already minted")
	}
	return m.putToken(mint, &storedToken{Owner: to})
}

// TokenMove transfers an ownership token from one holder to another.
func (m *Manager) TokenMove(mint [32]byte, from, to [20]byte) error {
	token, err := m.loadToken(mint)
	if err != nil {
		return err
	}
	if token == nil || token.Burned {
		return fmt.Errorf("state: token not available")
	}
	if token.Owner != from {
		return fmt.Errorf("state: token not held by sender")
	}
	token.Owner = to
	return m.putToken(mint, token)
}

// TokenBurn permanently retires an ownership token. Only the current holder
// can burn, and a burned token can never move or burn again.
func (m *Manager) TokenBurn(mint [32]byte, from [20]byte) error {
	token, err := m.loadToken(mint)
	if err != nil {
		return err
	}
	if token == nil || token.Burned {
		return fmt.Errorf("state: token not available")
	}
	if token.Owner != from {
		return fmt.Errorf("state: token not held by caller")
	}
	token.Burned = true
	return m.putToken(mint, token)
}

// TokenOwner reports the current holder of a live token.
func (m *Manager) TokenOwner(mint [32]byte) ([20]byte, error) {
	token, err := m.loadToken(mint)
	if err != nil {
		return [20]byte{}, err
	}
	if token == nil || token.Burned {
		return [20]byte{}, fmt.Errorf("state: token not available")
	}
	return token.Owner, nil
}

// TokenMetadataPut registers descriptive metadata against a token mint.
func (m *Manager) TokenMetadataPut(mint [32]byte, meta *giftcard.TokenMetadata) error {
	if meta == nil {
		return fmt.Errorf("state: nil token metadata")
	}
	data, err := rlp.EncodeToBytes(&storedMetadata{
		Name:    meta.Name,
		Symbol:  meta.Symbol,
		URI:     meta.URI,
		Creator: meta.Creator,
	})
	if err != nil {
		return fmt.Errorf("state: encode token metadata: %w", err)
	}
	m.write(metadataKey(mint), data)
	return nil
}

// TokenMetadataGet loads the metadata registered for a token mint.
func (m *Manager) TokenMetadataGet(mint [32]byte) (*giftcard.TokenMetadata, error) {
	data, err := m.read(metadataKey(mint))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("state: token metadata not found")
	}
	var stored storedMetadata
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode token metadata: %w", err)
	}
	return &giftcard.TokenMetadata{
		Name:    stored.Name,
		Symbol:  stored.Symbol,
		URI:     stored.URI,
		Creator: stored.Creator,
	}, nil
}
