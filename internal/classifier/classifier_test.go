package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/nalgeon/be"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

func TestSenderClassifier(t *testing.T) {
	c := NewSenderClassifier(DefaultSenderTokens)

	be.True(t, c.IsFinancialSender("AD-HDFCBK"))
	be.True(t, c.IsFinancialSender("HDFC-ALERT"))
	be.True(t, c.IsFinancialSender("vm-icicib"))
	be.True(t, c.IsFinancialSender("JD-PayTm"))
	be.True(t, !c.IsFinancialSender("FRIEND"))
	be.True(t, !c.IsFinancialSender("+919812345678"))
	be.True(t, !c.IsFinancialSender(""))
	be.True(t, !c.IsFinancialSender("   "))
}

func TestSenderClassifierInjectedTokens(t *testing.T) {
	c := NewSenderClassifier([]string{" monzo ", "", "REVOLUT", "monzo"})

	be.Equal(t, c.Tokens(), []string{"MONZO", "REVOLUT"})
	be.True(t, c.IsFinancialSender("Monzo"))
	be.True(t, c.IsFinancialSender("revolut-uk"))
	be.True(t, !c.IsFinancialSender("HDFC-ALERT"))
}

func TestSenderClassifierNoTokens(t *testing.T) {
	c := NewSenderClassifier(nil)
	be.True(t, !c.IsFinancialSender("HDFC"))
}

func TestContentClassifierKeywords(t *testing.T) {
	c, err := DefaultPatternSet().Retrieval()
	be.Err(t, err, nil)

	for _, keyword := range DefaultKeywords {
		be.True(t, c.IsTransactionMessage("Your a/c was "+keyword+" today"))
	}

	be.True(t, c.IsTransactionMessage("Rs.500 DEBITED from A/c XX1234"))
	be.True(t, c.IsTransactionMessage("UPI Txn of 250 successful"))
	be.True(t, !c.IsTransactionMessage("see you at 5"))
	be.True(t, !c.IsTransactionMessage(""))
	be.True(t, !c.IsTransactionMessage("  \n"))
}

func TestContentClassifierAmountHeuristic(t *testing.T) {
	set := DefaultPatternSet()
	retrieval, err := set.Retrieval()
	be.Err(t, err, nil)
	live, err := set.Live()
	be.Err(t, err, nil)

	body := "Rs. 1200 at AMAZON on card XX9876"
	be.True(t, !retrieval.IsTransactionMessage(body))
	be.True(t, live.IsTransactionMessage(body))
	be.True(t, live.IsTransactionMessage("RS500 towards bill"))
	be.True(t, !live.IsTransactionMessage("rs and stuff"))
	be.True(t, set.Diverges())
}

func TestPatternSetUnified(t *testing.T) {
	set := DefaultPatternSet()
	set.RetrievalAmount = true
	set.CurrencyMarkers = []string{`rs\.?`, `inr`, `₹`}

	be.True(t, !set.Diverges())

	retrieval, err := set.Retrieval()
	be.Err(t, err, nil)
	be.True(t, retrieval.IsTransactionMessage("INR 99 at store"))
	be.True(t, retrieval.IsTransactionMessage("₹450 at cafe"))
}

func TestPatternSetQuotesKeywords(t *testing.T) {
	set := PatternSet{Keywords: []string{"a.c"}}
	c, err := set.Retrieval()
	be.Err(t, err, nil)

	be.True(t, c.IsTransactionMessage("A.C credited"))
	be.True(t, !c.IsTransactionMessage("abc"))
}

func TestPatternSetEmpty(t *testing.T) {
	_, err := PatternSet{Keywords: []string{" "}}.Live()
	be.Err(t, err)
}

type fakeCompleter struct {
	answer string
	err    error
	calls  int
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.answer}},
		},
	}, nil
}

func TestGPTClassifier(t *testing.T) {
	live, err := DefaultPatternSet().Live()
	be.Err(t, err, nil)

	t.Run("regex hit skips model", func(t *testing.T) {
		fc := &fakeCompleter{answer: "no"}
		c := newGPTClassifier(fc, "", 0, live, zap.NewNop())
		be.True(t, c.IsTransactionMessage("Rs.10 debited"))
		be.Equal(t, fc.calls, 0)
	})

	t.Run("model yes", func(t *testing.T) {
		fc := &fakeCompleter{answer: " Yes."}
		c := newGPTClassifier(fc, "", 0, live, zap.NewNop())
		be.True(t, c.IsTransactionMessage("Card ending 1234 used at STARBUCKS"))
		be.Equal(t, fc.calls, 1)
	})

	t.Run("model no", func(t *testing.T) {
		fc := &fakeCompleter{answer: "no"}
		c := newGPTClassifier(fc, "", 0, live, zap.NewNop())
		be.True(t, !c.IsTransactionMessage("Happy birthday"))
	})

	t.Run("model error", func(t *testing.T) {
		fc := &fakeCompleter{err: errors.New("rate limited")}
		c := newGPTClassifier(fc, "", 0, live, zap.NewNop())
		be.True(t, !c.IsTransactionMessage("Happy birthday"))
	})

	t.Run("empty body", func(t *testing.T) {
		fc := &fakeCompleter{answer: "yes"}
		c := newGPTClassifier(fc, "", 0, live, zap.NewNop())
		be.True(t, !c.IsTransactionMessage(""))
		be.Equal(t, fc.calls, 0)
	})
}
