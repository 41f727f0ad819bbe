package classifier

import (
	"regexp"
	"strings"
)

// SenderMatcher decides whether an originating address belongs to a bank or
// payment provider.
type SenderMatcher interface {
	IsFinancialSender(address string) bool
}

// ContentMatcher decides whether a message body describes a transaction.
type ContentMatcher interface {
	IsTransactionMessage(body string) bool
}

// ContentFunc adapts a plain function to ContentMatcher.
type ContentFunc func(body string) bool

func (f ContentFunc) IsTransactionMessage(body string) bool { return f(body) }

// SenderClassifier matches addresses against a list of institution tokens.
type SenderClassifier struct {
	tokens []string
}

func NewSenderClassifier(tokens []string) *SenderClassifier {
	normalized := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		token = strings.ToUpper(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		normalized = append(normalized, token)
	}
	return &SenderClassifier{tokens: normalized}
}

// IsFinancialSender reports whether the upper-cased address contains any
// configured token. "HDFC-ALERT" matches the token "HDFC".
func (c *SenderClassifier) IsFinancialSender(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" {
		return false
	}

	upper := strings.ToUpper(address)
	for _, token := range c.tokens {
		if strings.Contains(upper, token) {
			return true
		}
	}
	return false
}

func (c *SenderClassifier) Tokens() []string {
	out := make([]string, len(c.tokens))
	copy(out, c.tokens)
	return out
}

// ContentClassifier matches a body against a compiled transaction pattern.
type ContentClassifier struct {
	re *regexp.Regexp
}

func (c *ContentClassifier) IsTransactionMessage(body string) bool {
	if strings.TrimSpace(body) == "" {
		return false
	}
	return c.re.MatchString(body)
}

// Pattern returns the source of the compiled expression.
func (c *ContentClassifier) Pattern() string {
	return c.re.String()
}
