package pdu

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
)

var errShort = errors.New("truncated pdu")

type alphabet int

const (
	alphabetGSM7 alphabet = iota
	alphabet8Bit
	alphabetUCS2
)

// reader walks a TPDU and fails with errShort instead of panicking.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errShort
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, errShort
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// decodeDeliver parses an SMS-DELIVER TPDU preceded by the SMSC field.
func decodeDeliver(data []byte) (Fragment, error) {
	r := &reader{data: data}

	smscLen, err := r.readByte()
	if err != nil {
		return Fragment{}, err
	}
	if _, err := r.readBytes(int(smscLen)); err != nil {
		return Fragment{}, err
	}

	first, err := r.readByte()
	if err != nil {
		return Fragment{}, err
	}
	if mti := first & 0x03; mti != 0x00 {
		return Fragment{}, fmt.Errorf("not an SMS-DELIVER (mti %d)", mti)
	}
	hasUDH := first&0x40 != 0

	address, err := readAddress(r)
	if err != nil {
		return Fragment{}, err
	}

	if _, err := r.readByte(); err != nil { // TP-PID
		return Fragment{}, err
	}
	dcs, err := r.readByte()
	if err != nil {
		return Fragment{}, err
	}
	scts, err := r.readBytes(7)
	if err != nil {
		return Fragment{}, err
	}
	ts, err := decodeTimestamp(scts)
	if err != nil {
		return Fragment{}, err
	}

	udl, err := r.readByte()
	if err != nil {
		return Fragment{}, err
	}
	ud := r.data[r.pos:]

	body, err := decodeUserData(alphabetFor(dcs), int(udl), ud, hasUDH)
	if err != nil {
		return Fragment{}, err
	}

	return Fragment{Address: address, Body: body, Timestamp: ts.UnixMilli()}, nil
}

func readAddress(r *reader) (string, error) {
	digits, err := r.readByte()
	if err != nil {
		return "", err
	}
	toa, err := r.readByte()
	if err != nil {
		return "", err
	}
	raw, err := r.readBytes((int(digits) + 1) / 2)
	if err != nil {
		return "", err
	}

	switch ton := (toa >> 4) & 0x07; ton {
	case 0x05: // alphanumeric, GSM 7-bit packed
		septets := int(digits) * 4 / 7
		s, err := unpackGSM7(raw, septets, 0)
		if err != nil {
			return "", err
		}
		return s, nil
	case 0x01:
		return "+" + semiOctets(raw, int(digits)), nil
	default:
		return semiOctets(raw, int(digits)), nil
	}
}

func semiOctets(raw []byte, digits int) string {
	var b strings.Builder
	for _, octet := range raw {
		for _, nibble := range []byte{octet & 0x0F, octet >> 4} {
			if b.Len() >= digits || nibble == 0x0F {
				continue
			}
			b.WriteByte(bcdDigit(nibble))
		}
	}
	return b.String()
}

func bcdDigit(n byte) byte {
	switch {
	case n <= 9:
		return '0' + n
	case n == 0x0A:
		return '*'
	case n == 0x0B:
		return '#'
	default:
		return 'a' + (n - 0x0C)
	}
}

// swapped reads a semi-octet-swapped decimal pair.
func swapped(b byte) int {
	return int(b&0x0F)*10 + int(b>>4)
}

func decodeTimestamp(scts []byte) (time.Time, error) {
	year := 2000 + swapped(scts[0])
	if year >= 2090 {
		year -= 100
	}
	month, day := swapped(scts[1]), swapped(scts[2])
	hour, minute, second := swapped(scts[3]), swapped(scts[4]), swapped(scts[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid timestamp")
	}

	// The zone is in quarter hours; bit 3 of the first digit is the sign.
	tz := scts[6]
	quarters := int(tz&0x07)*10 + int(tz>>4)
	offset := quarters * 15 * 60
	if tz&0x08 != 0 {
		offset = -offset
	}

	zone := time.FixedZone("", offset)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, zone), nil
}

func alphabetFor(dcs byte) alphabet {
	switch {
	case dcs&0xC0 == 0x00: // general data coding
		switch (dcs >> 2) & 0x03 {
		case 0x01:
			return alphabet8Bit
		case 0x02:
			return alphabetUCS2
		default:
			return alphabetGSM7
		}
	case dcs&0xF0 == 0xE0:
		return alphabetUCS2
	case dcs&0xF0 == 0xF0:
		if dcs&0x04 != 0 {
			return alphabet8Bit
		}
		return alphabetGSM7
	default:
		return alphabetGSM7
	}
}

func decodeUserData(alpha alphabet, udl int, ud []byte, hasUDH bool) (string, error) {
	headerOctets := 0
	if hasUDH {
		if len(ud) == 0 {
			return "", errShort
		}
		headerOctets = int(ud[0]) + 1
		if headerOctets > len(ud) {
			return "", errShort
		}
	}

	switch alpha {
	case alphabetGSM7:
		if (udl*7+7)/8 > len(ud) {
			return "", errShort
		}
		skip := (headerOctets*8 + 6) / 7
		if skip > udl {
			return "", errShort
		}
		return unpackGSM7(ud, udl, skip)
	case alphabetUCS2:
		if udl > len(ud) || headerOctets > udl {
			return "", errShort
		}
		payload := ud[headerOctets:udl]
		if len(payload)%2 != 0 {
			return "", fmt.Errorf("odd UCS-2 length")
		}
		units := make([]uint16, len(payload)/2)
		for i := range units {
			units[i] = uint16(payload[2*i])<<8 | uint16(payload[2*i+1])
		}
		return string(utf16.Decode(units)), nil
	default:
		if udl > len(ud) || headerOctets > udl {
			return "", errShort
		}
		return string(ud[headerOctets:udl]), nil
	}
}
