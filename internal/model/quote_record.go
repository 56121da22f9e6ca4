package model

import (
	"encoding/json"
	"time"
)

// QuoteRecord is the flattened representation of a quote for storage.
type QuoteRecord struct {
	ChainID       uint64   `json:"chain_id"`
	AmmID         string   `json:"amm_id"`
	Family        string   `json:"family"`
	Kind          string   `json:"kind"`
	Pool          string   `json:"pool"`
	InputTokens   []string `json:"input_tokens"`
	InputAmounts  []string `json:"input_amounts"`
	OutputTokens  []string `json:"output_tokens"`
	OutputAmounts []string `json:"output_amounts"`
	MinAmounts    []string `json:"min_amounts"`
	PriceImpact   string   `json:"price_impact"`
	StepCount     int      `json:"step_count"`
	Warnings      []string `json:"warnings,omitempty"`
	QuotedAt      string   `json:"quoted_at"`
}

// NewQuoteRecord flattens a quote result.
func NewQuoteRecord(chainID uint64, result QuoteResult, quotedAt time.Time) QuoteRecord {
	record := QuoteRecord{
		ChainID:     chainID,
		AmmID:       result.AmmID,
		Family:      string(result.Family),
		Kind:        string(result.Kind),
		Pool:        result.Pool.Hex(),
		PriceImpact: result.PriceImpact.String(),
		StepCount:   len(result.Steps),
		Warnings:    result.Warnings,
		QuotedAt:    quotedAt.UTC().Format(time.RFC3339),
	}
	for _, in := range result.Inputs {
		record.InputTokens = append(record.InputTokens, in.Token.Address.Hex())
		record.InputAmounts = append(record.InputAmounts, in.Amount.String())
	}
	for _, out := range result.Outputs {
		record.OutputTokens = append(record.OutputTokens, out.Token.Address.Hex())
		record.OutputAmounts = append(record.OutputAmounts, out.Amount.String())
	}
	for _, min := range result.MinOutputs {
		record.MinAmounts = append(record.MinAmounts, min.Amount.String())
	}
	return record
}

// MarshalJSON ensures QuoteRecord is encoded with stable field names.
func (qr QuoteRecord) MarshalJSON() ([]byte, error) {
	type Alias QuoteRecord
	return json.Marshal(Alias(qr))
}

// UnmarshalJSON decodes a QuoteRecord from JSON.
func (qr *QuoteRecord) UnmarshalJSON(data []byte) error {
	type Alias QuoteRecord
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*qr = QuoteRecord(a)
	return nil
}
