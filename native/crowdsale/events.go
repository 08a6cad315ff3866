package crowdsale

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"salechain/core/types"
)

const (
	EventTypeSaleCreated = "crowdsale.created"
	EventTypePurchase    = "crowdsale.purchase"
	EventTypeWithdrawal  = "crowdsale.withdrawal"
	EventTypeSaleClosed  = "crowdsale.closed"
)

// Purchase describes one settled exchange.
type Purchase struct {
	Sale        solana.PublicKey `json:"sale"`
	SaleID      solana.PublicKey `json:"saleId"`
	Buyer       solana.PublicKey `json:"buyer"`
	BuyerTokens solana.PublicKey `json:"buyerTokens"`
	Mint        solana.PublicKey `json:"mint"`
	Amount      uint32           `json:"amount"`
	Cost        uint32           `json:"cost"`
	Total       uint64           `json:"total"`
}

// NewCreatedEvent returns the canonical payload for a newly created sale.
func NewCreatedEvent(sale solana.PublicKey, r *SaleRecord) *types.Event {
	return &types.Event{Type: EventTypeSaleCreated, Attributes: map[string]string{
		"sale":    sale.String(),
		"saleId":  r.ID.String(),
		"owner":   r.Owner.String(),
		"mint":    r.MintAccount.String(),
		"reserve": r.TokenAccount.String(),
		"cost":    strconv.FormatUint(uint64(r.Cost), 10),
		"status":  r.Status.String(),
	}}
}

// NewPurchaseEvent returns the canonical payload for a settled purchase.
func NewPurchaseEvent(p Purchase) *types.Event {
	return &types.Event{Type: EventTypePurchase, Attributes: map[string]string{
		"sale":        p.Sale.String(),
		"saleId":      p.SaleID.String(),
		"buyer":       p.Buyer.String(),
		"buyerTokens": p.BuyerTokens.String(),
		"mint":        p.Mint.String(),
		"amount":      strconv.FormatUint(uint64(p.Amount), 10),
		"cost":        strconv.FormatUint(uint64(p.Cost), 10),
		"total":       strconv.FormatUint(p.Total, 10),
	}}
}

// NewWithdrawalEvent returns the payload for proceeds swept to the owner.
func NewWithdrawalEvent(sale solana.PublicKey, r *SaleRecord, amount, remaining uint64) *types.Event {
	return &types.Event{Type: EventTypeWithdrawal, Attributes: map[string]string{
		"sale":      sale.String(),
		"saleId":    r.ID.String(),
		"owner":     r.Owner.String(),
		"amount":    strconv.FormatUint(amount, 10),
		"remaining": strconv.FormatUint(remaining, 10),
	}}
}

// NewClosedEvent returns the payload emitted when a sale stops accepting
// purchases.
func NewClosedEvent(sale solana.PublicKey, r *SaleRecord) *types.Event {
	return &types.Event{Type: EventTypeSaleClosed, Attributes: map[string]string{
		"sale":   sale.String(),
		"saleId": r.ID.String(),
		"owner":  r.Owner.String(),
	}}
}

// PurchaseFromEvent reverses NewPurchaseEvent. It reports false for other
// event types or malformed payloads.
func PurchaseFromEvent(evt types.Event) (Purchase, bool) {
	if evt.Type != EventTypePurchase {
		return Purchase{}, false
	}
	var (
		p   Purchase
		err error
	)
	keys := []struct {
		attr string
		dst  *solana.PublicKey
	}{
		{"sale", &p.Sale}, {"saleId", &p.SaleID}, {"buyer", &p.Buyer},
		{"buyerTokens", &p.BuyerTokens}, {"mint", &p.Mint},
	}
	for _, k := range keys {
		if *k.dst, err = solana.PublicKeyFromBase58(evt.Attributes[k.attr]); err != nil {
			return Purchase{}, false
		}
	}
	amount, err := strconv.ParseUint(evt.Attributes["amount"], 10, 32)
	if err != nil {
		return Purchase{}, false
	}
	cost, err := strconv.ParseUint(evt.Attributes["cost"], 10, 32)
	if err != nil {
		return Purchase{}, false
	}
	total, err := strconv.ParseUint(evt.Attributes["total"], 10, 64)
	if err != nil {
		return Purchase{}, false
	}
	p.Amount, p.Cost, p.Total = uint32(amount), uint32(cost), total
	return p, true
}
