// Package pdu decodes the raw message fragments delivered by the platform's
// arrival events. Two formats are understood: "3gpp" (GSM 03.40 SMS-DELIVER
// TPDUs, binary or hex text) and "json" (fragments a bridge has already
// decoded).
package pdu

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	Format3GPP = "3gpp"
	FormatJSON = "json"
)

var ErrMalformed = errors.New("pdu: malformed fragment")

// MalformedError describes a fragment that could not be decoded. Index is
// the fragment's position within its event; DecodeAll fills it in.
type MalformedError struct {
	Index  int
	Format string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("pdu: malformed %s fragment %d: %v", e.Format, e.Index, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// Fragment is one decoded transport segment.
type Fragment struct {
	Address   string `json:"address"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
}

// Decode parses raw according to format. An empty format is treated as 3gpp,
// the platform default.
func Decode(format string, raw []byte) (Fragment, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = Format3GPP
	}

	var (
		f   Fragment
		err error
	)
	switch format {
	case Format3GPP:
		f, err = decodeDeliver(unhex(raw))
	case FormatJSON:
		err = json.Unmarshal(raw, &f)
	default:
		err = fmt.Errorf("unsupported format")
	}
	if err != nil {
		return Fragment{}, &MalformedError{Format: format, Err: err}
	}
	return f, nil
}

// DecodeAll decodes every fragment of one arrival event independently. A
// fragment that fails to decode does not affect the others: its error is
// returned in errs and its slot is omitted from fragments.
func DecodeAll(format string, raws [][]byte) (fragments []Fragment, errs []error) {
	for i, raw := range raws {
		f, err := Decode(format, raw)
		if err != nil {
			var me *MalformedError
			if errors.As(err, &me) {
				me.Index = i
			}
			errs = append(errs, err)
			continue
		}
		fragments = append(fragments, f)
	}
	return fragments, errs
}

// unhex returns the decoded bytes when raw is hex text, raw otherwise.
func unhex(raw []byte) []byte {
	text := strings.TrimSpace(string(raw))
	if text == "" || len(text)%2 != 0 {
		return raw
	}
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return raw
	}
	return decoded
}
