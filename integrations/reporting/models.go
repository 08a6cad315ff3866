package reporting

import (
	"time"

	"gorm.io/gorm"
)

// SaleSummary aggregates committed activity of one sale.
type SaleSummary struct {
	SaleID            string    `gorm:"primaryKey;size:64" json:"saleId"`
	Sale              string    `gorm:"size:64;index" json:"sale"`
	Owner             string    `gorm:"size:64;index" json:"owner"`
	Mint              string    `gorm:"size:64" json:"mint"`
	Cost              uint32    `json:"cost"`
	Status            string    `gorm:"size:16" json:"status"`
	CreatedSlot       uint64    `json:"createdSlot"`
	ClosedSlot        uint64    `json:"closedSlot,omitempty"`
	Purchases         uint64    `json:"purchases"`
	TokensSold        uint64    `json:"tokensSold"`
	LamportsRaised    uint64    `json:"lamportsRaised"`
	LamportsWithdrawn uint64    `json:"lamportsWithdrawn"`
	CreatedAt         time.Time `json:"-"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// PurchaseEntry is one settled purchase.
type PurchaseEntry struct {
	ID        uint   `gorm:"primaryKey"`
	Sequence  uint64
	TxHash    string `gorm:"size:64;index"`
	Slot      uint64 `gorm:"index"`
	SaleID    string `gorm:"size:64;index"`
	Buyer     string `gorm:"size:64;index"`
	Amount    uint32
	Cost      uint32
	Total     uint64
	CreatedAt time.Time
}

// AppliedEvent marks a bus envelope as folded into the aggregates. Sequences
// restart with the node, transaction hashes never repeat.
type AppliedEvent struct {
	TxHash   string `gorm:"primaryKey;size:64"`
	Sequence uint64 `gorm:"primaryKey;autoIncrement:false"`
}

// BuyerTotal is the aggregate spend of one buyer in a sale.
type BuyerTotal struct {
	Buyer     string `json:"buyer"`
	Purchases uint64 `json:"purchases"`
	Tokens    uint64 `json:"tokens"`
	Lamports  uint64 `json:"lamports"`
}

// AutoMigrate performs the schema migrations of the reporting store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&SaleSummary{}, &PurchaseEntry{}, &AppliedEvent{})
}
