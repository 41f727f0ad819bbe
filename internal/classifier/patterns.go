package classifier

import (
	"fmt"
	"regexp"
	"strings"
)

// Common Indian bank and wallet sender ids.
var DefaultSenderTokens = []string{
	"HDFC", "ICICI", "SBI", "AXIS", "KOTAK", "PNB", "BOB", "BOI", "CANARA",
	"UNION", "IDBI", "YES", "INDUS", "RBL", "FEDERAL", "BANDHAN", "PAYTM",
	"GPAY", "PHONEPE", "MOBIKWIK", "AMAZONPAY", "BAJAJ", "CITI", "HSBC",
	"SCBANK", "AMEX", "DINERS", "RUPAY", "VISA", "MASTER",
}

var DefaultKeywords = []string{
	"debited", "credited", "spent", "received", "withdrawn", "deposited",
	"paid", "payment", "purchase", "transfer", "txn", "transaction",
}

// DefaultCurrencyMarkers are regexp fragments placed before the amount digits.
var DefaultCurrencyMarkers = []string{`rs\.?`}

// PatternSet is the single source for both the retrieval and the live
// content patterns. The two paths differ only in whether the currency-amount
// heuristic is appended.
type PatternSet struct {
	Keywords        []string
	CurrencyMarkers []string

	RetrievalAmount bool
	LiveAmount      bool
}

func DefaultPatternSet() PatternSet {
	return PatternSet{
		Keywords:        DefaultKeywords,
		CurrencyMarkers: DefaultCurrencyMarkers,
		RetrievalAmount: false,
		LiveAmount:      true,
	}
}

// Diverges reports whether the two paths classify with different patterns.
func (p PatternSet) Diverges() bool {
	return p.RetrievalAmount != p.LiveAmount
}

func (p PatternSet) Retrieval() (*ContentClassifier, error) {
	return p.build(p.RetrievalAmount)
}

func (p PatternSet) Live() (*ContentClassifier, error) {
	return p.build(p.LiveAmount)
}

func (p PatternSet) build(withAmount bool) (*ContentClassifier, error) {
	alternatives := make([]string, 0, len(p.Keywords)+1)
	for _, keyword := range p.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			continue
		}
		alternatives = append(alternatives, regexp.QuoteMeta(keyword))
	}

	if withAmount {
		markers := make([]string, 0, len(p.CurrencyMarkers))
		for _, marker := range p.CurrencyMarkers {
			if marker = strings.TrimSpace(marker); marker != "" {
				markers = append(markers, marker)
			}
		}
		if len(markers) > 0 {
			alternatives = append(alternatives, fmt.Sprintf(`(?:%s)\s*\d+`, strings.Join(markers, "|")))
		}
	}

	if len(alternatives) == 0 {
		return nil, fmt.Errorf("classifier: pattern set has no keywords")
	}

	re, err := regexp.Compile(`(?i)(` + strings.Join(alternatives, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("classifier: compiling content pattern: %w", err)
	}
	return &ContentClassifier{re: re}, nil
}
