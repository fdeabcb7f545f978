package llm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
)

// parseExtraction parses the line-oriented extraction response into a
// candidate. It is deliberately tolerant: unknown lines are skipped and
// recoverable formatting slips (currency symbols, thousand separators,
// percentage confidences) are repaired rather than rejected.
func parseExtraction(content string, msg model.RawMessage) (*model.Candidate, error) {
	fields := make(map[string]string)

	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		fields[key] = strings.TrimSpace(value)
	}

	verdict := strings.ToLower(fields["TRANSACTION"])
	switch verdict {
	case "no", "false":
		return nil, common.ErrNotTransaction
	case "yes", "true":
	default:
		return nil, fmt.Errorf("missing or unrecognized TRANSACTION verdict in %q", content)
	}

	amount, err := parseAmount(fields["AMOUNT"])
	if err != nil {
		return nil, err
	}

	direction := model.DirectionDebit
	if strings.EqualFold(fields["DIRECTION"], string(model.DirectionCredit)) {
		direction = model.DirectionCredit
	}

	occurredAt := msg.ReceivedAt
	if dateStr := fields["DATE"]; dateStr != "" {
		if parsed, dateErr := time.ParseInLocation("2006-01-02", dateStr, time.UTC); dateErr == nil {
			occurredAt = parsed
		}
		// An unparseable date falls back to the received timestamp.
	}

	return &model.Candidate{
		Amount:        amount,
		Name:          fields["NAME"],
		Category:      model.ParseCategory(fields["CATEGORY"]),
		Direction:     direction,
		PaymentMethod: fields["PAYMENT_METHOD"],
		ReferenceID:   fields["REFERENCE"],
		OccurredAt:    occurredAt,
		Institution:   fields["INSTITUTION"],
		Confidence:    parseConfidence(fields["CONFIDENCE"]),
		RawText:       msg.Body,
	}, nil
}

// parseAmount repairs common model slips: currency prefixes, thousand
// separators, trailing periods.
func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	for _, prefix := range []string{"Rs.", "Rs", "INR", "₹", "$"} {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, ".")

	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("no amount in extraction response")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", raw, err)
	}
	return amount, nil
}

// parseConfidence accepts 0-1 floats and percentage forms; anything else
// degrades to zero, which downstream reads as "needs review".
func parseConfidence(raw string) float64 {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return 0
	}

	isPercent := strings.HasSuffix(cleaned, "%")
	cleaned = strings.TrimSuffix(cleaned, "%")

	value, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0
	}
	if isPercent || value > 1 {
		value /= 100
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
