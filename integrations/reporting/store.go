package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"salechain/core/events"
	"salechain/native/crowdsale"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrSaleNotIndexed is returned for sales the store has not seen.
var ErrSaleNotIndexed = errors.New("reporting: sale not indexed")

// Store keeps queryable aggregates of committed crowdsale events.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the reporting database and applies migrations.
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("reporting: dsn required")
	}
	var dialector gorm.Dialector
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("reporting: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("reporting: open database: %w", err)
	}
	if driver != DriverPostgres {
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("reporting: open database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("reporting: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, logger: log.With("component", "reporting")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Apply folds one committed crowdsale event into the aggregates. Envelopes
// already applied and events of other modules are ignored.
func (s *Store) Apply(ctx context.Context, env events.Envelope) error {
	if !strings.HasPrefix(env.Event.Type, crowdsale.ModuleName+".") {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&AppliedEvent{TxHash: env.TxHash, Sequence: env.Sequence})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return applyEvent(tx, env)
	})
}

func applyEvent(tx *gorm.DB, env events.Envelope) error {
	attrs := env.Event.Attributes
	saleID := attrs["saleId"]
	switch env.Event.Type {
	case crowdsale.EventTypeSaleCreated:
		cost, err := strconv.ParseUint(attrs["cost"], 10, 32)
		if err != nil {
			return fmt.Errorf("reporting: created event cost: %w", err)
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&SaleSummary{
			SaleID:      saleID,
			Sale:        attrs["sale"],
			Owner:       attrs["owner"],
			Mint:        attrs["mint"],
			Cost:        uint32(cost),
			Status:      attrs["status"],
			CreatedSlot: env.Slot,
		}).Error
	case crowdsale.EventTypePurchase:
		p, ok := crowdsale.PurchaseFromEvent(env.Event)
		if !ok {
			return fmt.Errorf("reporting: malformed purchase event %d", env.Sequence)
		}
		entry := &PurchaseEntry{
			Sequence: env.Sequence,
			TxHash:   env.TxHash,
			Slot:     env.Slot,
			SaleID:   p.SaleID.String(),
			Buyer:    p.Buyer.String(),
			Amount:   p.Amount,
			Cost:     p.Cost,
			Total:    p.Total,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		return tx.Model(&SaleSummary{}).Where("sale_id = ?", entry.SaleID).Updates(map[string]interface{}{
			"purchases":       gorm.Expr("purchases + ?", 1),
			"tokens_sold":     gorm.Expr("tokens_sold + ?", p.Amount),
			"lamports_raised": gorm.Expr("lamports_raised + ?", p.Total),
		}).Error
	case crowdsale.EventTypeWithdrawal:
		amount, err := strconv.ParseUint(attrs["amount"], 10, 64)
		if err != nil {
			return fmt.Errorf("reporting: withdrawal amount: %w", err)
		}
		return tx.Model(&SaleSummary{}).Where("sale_id = ?", saleID).
			Update("lamports_withdrawn", gorm.Expr("lamports_withdrawn + ?", amount)).Error
	case crowdsale.EventTypeSaleClosed:
		return tx.Model(&SaleSummary{}).Where("sale_id = ?", saleID).Updates(map[string]interface{}{
			"status":      crowdsale.StatusClosed.String(),
			"closed_slot": env.Slot,
		}).Error
	}
	return nil
}

// Run applies the retained bus history and then every committed event until
// ctx ends. Failures are logged and the event skipped.
func (s *Store) Run(ctx context.Context, bus *events.Bus) {
	_ = bus.Follow(ctx, "0", func(env events.Envelope) error {
		if err := s.Apply(ctx, env); err != nil {
			s.logger.Error("reporting apply failed",
				slog.Uint64("sequence", env.Sequence),
				slog.String("type", env.Event.Type),
				slog.Any("error", err))
		}
		return nil
	})
}

// Summary returns the aggregates of the sale created under saleID.
func (s *Store) Summary(ctx context.Context, saleID string) (*SaleSummary, error) {
	var summary SaleSummary
	err := s.db.WithContext(ctx).Where("sale_id = ?", saleID).Take(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSaleNotIndexed, saleID)
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// TopBuyers ranks the buyers of a sale by lamports spent.
func (s *Store) TopBuyers(ctx context.Context, saleID string, limit int) ([]BuyerTotal, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []BuyerTotal
	err := s.db.WithContext(ctx).Model(&PurchaseEntry{}).
		Select("buyer, COUNT(*) AS purchases, SUM(amount) AS tokens, SUM(total) AS lamports").
		Where("sale_id = ?", saleID).
		Group("buyer").
		Order("lamports DESC, buyer ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
