package types

import "math/big"

// Account holds the fungible settlement balance for a single ledger identity.
// Card records and escrow vault balances live in their own state namespaces;
// an account only carries what the value-transfer primitive needs.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
