package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/xaenox/bankwatch/internal/models"
)

const timeLayout = "2006-01-02 15:04"

var (
	dateColor    = color.New(color.FgHiBlack)
	addressColor = color.New(color.FgCyan, color.Bold)
	bankColor    = color.New(color.FgHiGreen)
	alertColor   = color.New(color.FgHiYellow, color.Bold)
)

func printMessages(w io.Writer, messages []models.Message, matches func(models.Message) bool) {
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages found.")
		return
	}
	for _, m := range messages {
		marker := "  "
		if matches != nil && matches(m) {
			marker = bankColor.Sprint("● ")
		}
		fmt.Fprintf(w, "%s%s  %s\n    %s\n",
			marker,
			dateColor.Sprint(time.UnixMilli(m.Date).Format(timeLayout)),
			addressColor.Sprint(m.Address),
			m.Body)
	}
}

// consoleSink prints notifications as they arrive.
type consoleSink struct {
	out io.Writer
}

func (s consoleSink) Notify(ctx context.Context, n models.Notification) error {
	_, err := fmt.Fprintf(s.out, "%s %s  %s [%s]\n    %s\n",
		alertColor.Sprint("💳"),
		dateColor.Sprint(time.UnixMilli(n.Date).Format(timeLayout)),
		addressColor.Sprint(n.Address),
		n.Origin,
		n.Body)
	return err
}
