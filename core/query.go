package core

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	ledgererrors "salechain/core/errors"
	"salechain/core/types"
	"salechain/native/crowdsale"
	"salechain/native/token"
)

// SaleView is a decoded sale together with its live balances.
type SaleView struct {
	Address       solana.PublicKey      `json:"address"`
	Authority     solana.PublicKey      `json:"authority"`
	Record        *crowdsale.SaleRecord `json:"record"`
	Lamports      uint64                `json:"lamports"`
	RentFloor     uint64                `json:"rentFloor"`
	Withdrawable  uint64                `json:"withdrawable"`
	ReserveTokens uint64                `json:"reserveTokens"`
}

// Account returns the account stored at addr. Unallocated addresses read as
// empty system accounts.
func (n *Node) Account(addr solana.PublicKey) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.GetAccount(addr)
}

// Balance returns the lamports held by addr.
func (n *Node) Balance(addr solana.PublicKey) (uint64, error) {
	acc, err := n.Account(addr)
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// Mint decodes the mint at addr.
func (n *Node) Mint(addr solana.PublicKey) (*token.Mint, error) {
	acc, err := n.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != token.ProgramID || len(acc.Data) == 0 {
		return nil, fmt.Errorf("%w: mint %s", ledgererrors.ErrNotFound, addr)
	}
	return token.DecodeMint(acc.Data)
}

// TokenAccount decodes the token account at addr.
func (n *Node) TokenAccount(addr solana.PublicKey) (*token.TokenAccount, error) {
	acc, err := n.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != token.ProgramID || len(acc.Data) == 0 {
		return nil, fmt.Errorf("%w: token account %s", ledgererrors.ErrNotFound, addr)
	}
	return token.DecodeTokenAccount(acc.Data)
}

// TokenBalance returns the balance of the associated token account of wallet
// for mint, or zero when it does not exist.
func (n *Node) TokenBalance(wallet, mint solana.PublicKey) (uint64, error) {
	ata, _, err := token.AssociatedAddress(wallet, mint)
	if err != nil {
		return 0, err
	}
	acc, err := n.Account(ata)
	if err != nil {
		return 0, err
	}
	if acc.Owner != token.ProgramID || len(acc.Data) == 0 {
		return 0, nil
	}
	decoded, err := token.DecodeTokenAccount(acc.Data)
	if err != nil {
		return 0, err
	}
	return decoded.Amount, nil
}

// Sale returns the sale created under id.
func (n *Node) Sale(id solana.PublicKey) (*SaleView, error) {
	address, _, err := crowdsale.SaleAddress(id)
	if err != nil {
		return nil, err
	}
	authority, _, err := crowdsale.AuthorityAddress(id)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	acc, err := n.state.GetAccount(address)
	if err != nil {
		return nil, err
	}
	if acc.Owner != crowdsale.ProgramID || len(acc.Data) == 0 {
		return nil, fmt.Errorf("%w: sale %s", ledgererrors.ErrNotFound, id)
	}
	record, err := crowdsale.DecodeRecord(acc.Data)
	if err != nil {
		return nil, err
	}
	floor := n.exec.Rent().MinimumBalance(len(acc.Data))
	withdrawable, _ := crowdsale.Withdrawable(acc.Lamports, floor)
	view := &SaleView{
		Address:      address,
		Authority:    authority,
		Record:       record,
		Lamports:     acc.Lamports,
		RentFloor:    floor,
		Withdrawable: withdrawable,
	}
	reserve, err := n.state.GetAccount(record.TokenAccount)
	if err != nil {
		return nil, err
	}
	if reserve.Owner == token.ProgramID && len(reserve.Data) > 0 {
		decoded, err := token.DecodeTokenAccount(reserve.Data)
		if err != nil {
			return nil, err
		}
		view.ReserveTokens = decoded.Amount
	}
	return view, nil
}

// Receipt returns the receipt recorded for a transaction hash.
func (n *Node) Receipt(hash string) (*types.Receipt, error) {
	receipt, ok, err := n.ledger.Receipt(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: receipt %s", ledgererrors.ErrNotFound, hash)
	}
	return receipt, nil
}

// Purchases pages through the settled purchases of the sale created under id.
func (n *Node) Purchases(id solana.PublicKey, offset, limit uint64) ([]PurchaseRecord, uint64, error) {
	return n.ledger.Purchases(id, offset, limit)
}

// MinimumBalance returns the rent-exempt floor for dataLen bytes.
func (n *Node) MinimumBalance(dataLen int) uint64 {
	return n.exec.Rent().MinimumBalance(dataLen)
}

// Slot returns the last committed slot.
func (n *Node) Slot() uint64 {
	return n.Head().Slot
}
