package pdu

const gsmEscape = 0x1B

var gsmDefault = []rune("@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞ\x1bÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà")

var gsmExtension = map[byte]rune{
	0x0A: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2F: '\\',
	0x3C: '[',
	0x3D: '~',
	0x3E: ']',
	0x40: '|',
	0x65: '€',
}

// unpackGSM7 unpacks count septets from data and decodes them from the GSM
// default alphabet, dropping the first skip septets (UDH and fill bits).
func unpackGSM7(data []byte, count, skip int) (string, error) {
	septets := make([]byte, 0, count)
	for i := 0; i < count; i++ {
		bit := i * 7
		idx, shift := bit/8, uint(bit%8)
		if idx >= len(data) {
			return "", errShort
		}
		v := data[idx] >> shift
		if shift > 1 {
			if idx+1 >= len(data) {
				return "", errShort
			}
			v |= data[idx+1] << (8 - shift)
		}
		septets = append(septets, v&0x7F)
	}
	if skip > len(septets) {
		return "", errShort
	}

	out := make([]rune, 0, len(septets)-skip)
	escaped := false
	for _, s := range septets[skip:] {
		if escaped {
			escaped = false
			if r, ok := gsmExtension[s]; ok {
				out = append(out, r)
			} else {
				out = append(out, gsmDefault[s])
			}
			continue
		}
		if s == gsmEscape {
			escaped = true
			continue
		}
		out = append(out, gsmDefault[s])
	}
	return string(out), nil
}
