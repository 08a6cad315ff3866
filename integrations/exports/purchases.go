package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"salechain/core"
	"salechain/observability/metrics"
)

var purchaseHeader = []string{"slot", "tx_hash", "sale_id", "sale", "buyer", "buyer_tokens", "mint", "amount", "cost", "total", "settled_at"}

func settledAt(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// PurchasesCSV serialises settled purchases and returns the payload with its
// SHA-256 checksum.
func PurchasesCSV(rows []core.PurchaseRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	w := csv.NewWriter(buffer)
	if err := w.Write(purchaseHeader); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.Slot, 10),
			row.TxHash,
			row.SaleID.String(),
			row.Sale.String(),
			row.Buyer.String(),
			row.BuyerTokens.String(),
			row.Mint.String(),
			strconv.FormatUint(uint64(row.Amount), 10),
			strconv.FormatUint(uint64(row.Cost), 10),
			strconv.FormatUint(row.Total, 10),
			settledAt(row.Timestamp),
		}
		if err := w.Write(record); err != nil {
			metrics.Exports().RecordFailure("csv")
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		metrics.Exports().RecordFailure("csv")
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	metrics.Exports().RecordExport("csv", len(rows), int64(len(data)))
	return data, hex.EncodeToString(checksum[:]), nil
}

type purchaseParquetRow struct {
	Slot        int64  `parquet:"name=slot, type=INT64"`
	TxHash      string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	SaleID      string `parquet:"name=sale_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Sale        string `parquet:"name=sale, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer       string `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	BuyerTokens string `parquet:"name=buyer_tokens, type=BYTE_ARRAY, convertedtype=UTF8"`
	Mint        string `parquet:"name=mint, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      int64  `parquet:"name=amount, type=INT64"`
	Cost        int64  `parquet:"name=cost, type=INT64"`
	Total       int64  `parquet:"name=total, type=INT64"`
	SettledAt   string `parquet:"name=settled_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WritePurchasesParquet writes settled purchases to a snappy-compressed
// Parquet file at path.
func WritePurchasesParquet(path string, rows []core.PurchaseRecord) (err error) {
	defer func() {
		if err != nil {
			metrics.Exports().RecordFailure("parquet")
		}
	}()
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(purchaseParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &purchaseParquetRow{
			Slot:        int64(row.Slot),
			TxHash:      row.TxHash,
			SaleID:      row.SaleID.String(),
			Sale:        row.Sale.String(),
			Buyer:       row.Buyer.String(),
			BuyerTokens: row.BuyerTokens.String(),
			Mint:        row.Mint.String(),
			Amount:      int64(row.Amount),
			Cost:        int64(row.Cost),
			Total:       int64(row.Total),
			SettledAt:   settledAt(row.Timestamp),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	info, statErr := file.Stat()
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	metrics.Exports().RecordExport("parquet", len(rows), size)
	return nil
}
