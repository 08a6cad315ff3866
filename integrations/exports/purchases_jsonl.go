package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"salechain/core"
	"salechain/observability/metrics"
)

// PurchasesJSONL writes one JSON object per settled purchase and returns the
// payload with its SHA-256 checksum. Lamport totals are strings so consumers
// without 64-bit integers keep full precision.
func PurchasesJSONL(rows []core.PurchaseRecord) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range rows {
		payload := map[string]interface{}{
			"slot":         row.Slot,
			"tx_hash":      row.TxHash,
			"sale_id":      row.SaleID.String(),
			"buyer":        row.Buyer.String(),
			"buyer_tokens": row.BuyerTokens.String(),
			"mint":         row.Mint.String(),
			"amount":       row.Amount,
			"cost":         row.Cost,
			"total":        strconv.FormatUint(row.Total, 10),
			"settled_at":   settledAt(row.Timestamp),
		}
		if err := encoder.Encode(payload); err != nil {
			metrics.Exports().RecordFailure("jsonl")
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	metrics.Exports().RecordExport("jsonl", len(rows), int64(len(data)))
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
