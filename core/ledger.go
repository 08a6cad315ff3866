package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"

	"salechain/core/types"
	"salechain/native/crowdsale"
	"salechain/storage"
)

var (
	headKey          = []byte("head")
	genesisKey       = []byte("genesis")
	receiptPrefix    = "receipt:"
	purchaseCountFmt = "purchases:%s:count"
	purchaseItemFmt  = "purchases:%s:%d"
)

// Head is the last committed ledger position.
type Head struct {
	Slot      uint64      `json:"slot"`
	StateRoot common.Hash `json:"stateRoot"`
	Timestamp int64       `json:"timestamp"`
}

// PurchaseRecord is a settled purchase together with the transaction that
// carried it.
type PurchaseRecord struct {
	crowdsale.Purchase
	TxHash    string `json:"txHash"`
	Slot      uint64 `json:"slot"`
	Timestamp int64  `json:"timestamp"`
}

// Ledger persists chain metadata next to the state trie: the head, receipts
// and the per-sale purchase index.
type Ledger struct {
	db storage.Database
}

// NewLedger wraps db.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) getJSON(key []byte, out any) (bool, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("ledger: decode %s: %w", key, err)
	}
	return true, nil
}

func (l *Ledger) putJSON(key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ledger: encode %s: %w", key, err)
	}
	return l.db.Put(key, raw)
}

// Head returns the committed head, or nil before genesis.
func (l *Ledger) Head() (*Head, error) {
	var head Head
	ok, err := l.getJSON(headKey, &head)
	if err != nil || !ok {
		return nil, err
	}
	return &head, nil
}

// SetHead records the committed head.
func (l *Ledger) SetHead(head Head) error {
	return l.putJSON(headKey, head)
}

// GenesisApplied reports whether genesis allocations were written.
func (l *Ledger) GenesisApplied() (bool, error) {
	return l.db.Has(genesisKey)
}

// MarkGenesis records that genesis allocations were written at root.
func (l *Ledger) MarkGenesis(root common.Hash) error {
	return l.db.Put(genesisKey, root.Bytes())
}

// Receipt returns the receipt of the transaction with the given base58 hash.
func (l *Ledger) Receipt(hash string) (*types.Receipt, bool, error) {
	var receipt types.Receipt
	ok, err := l.getJSON([]byte(receiptPrefix+hash), &receipt)
	if err != nil || !ok {
		return nil, false, err
	}
	return &receipt, true, nil
}

// HasReceipt reports whether a transaction was already processed.
func (l *Ledger) HasReceipt(hash string) (bool, error) {
	return l.db.Has([]byte(receiptPrefix + hash))
}

// PutReceipt stores a receipt under its transaction hash.
func (l *Ledger) PutReceipt(receipt *types.Receipt) error {
	return l.putJSON([]byte(receiptPrefix+receipt.TxHash), receipt)
}

func (l *Ledger) purchaseCount(saleID solana.PublicKey) (uint64, error) {
	raw, err := l.db.Get([]byte(fmt.Sprintf(purchaseCountFmt, saleID)))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// AppendPurchase adds record to the index of its sale.
func (l *Ledger) AppendPurchase(record PurchaseRecord) error {
	count, err := l.purchaseCount(record.SaleID)
	if err != nil {
		return err
	}
	if err := l.putJSON([]byte(fmt.Sprintf(purchaseItemFmt, record.SaleID, count)), record); err != nil {
		return err
	}
	return l.db.Put([]byte(fmt.Sprintf(purchaseCountFmt, record.SaleID)), []byte(strconv.FormatUint(count+1, 10)))
}

// Purchases returns up to limit purchases of a sale starting at offset, in
// settlement order. A zero limit returns everything after offset.
func (l *Ledger) Purchases(saleID solana.PublicKey, offset, limit uint64) ([]PurchaseRecord, uint64, error) {
	count, err := l.purchaseCount(saleID)
	if err != nil {
		return nil, 0, err
	}
	end := count
	if limit > 0 && offset+limit < count {
		end = offset + limit
	}
	out := make([]PurchaseRecord, 0)
	for i := offset; i < end; i++ {
		var record PurchaseRecord
		ok, err := l.getJSON([]byte(fmt.Sprintf(purchaseItemFmt, saleID, i)), &record)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			out = append(out, record)
		}
	}
	return out, count, nil
}
