// Copyright 2025 RetroLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package torrentzip

// cp437High maps CP437 bytes 0x80-0xFF to their Unicode code points. Bytes
// 0x00-0x7F are identical to ASCII, so the full 256-entry table is the
// identity on the low half plus this block.
var cp437High = [128]rune{
	'Ç', 'ü', 'é', 'â', 'ä', 'à', 'å', 'ç',
	'ê', 'ë', 'è', 'ï', 'î', 'ì', 'Ä', 'Å',
	'É', 'æ', 'Æ', 'ô', 'ö', 'ò', 'û', 'ù',
	'ÿ', 'Ö', 'Ü', '¢', '£', '¥', '₧', 'ƒ',
	'á', 'í', 'ó', 'ú', 'ñ', 'Ñ', 'ª', 'º',
	'¿', '⌐', '¬', '½', '¼', '¡', '«', '»',
	'░', '▒', '▓', '│', '┤', '╡', '╢', '╖',
	'╕', '╣', '║', '╗', '╝', '╜', '╛', '┐',
	'└', '┴', '┬', '├', '─', '┼', '╞', '╟',
	'╚', '╔', '╩', '╦', '╠', '═', '╬', '╧',
	'╨', '╤', '╥', '╙', '╘', '╒', '╓', '╫',
	'╪', '┘', '┌', '█', '▄', '▌', '▐', '▀',
	'α', 'ß', 'Γ', 'π', 'Σ', 'σ', 'µ', 'τ',
	'Φ', 'Θ', 'Ω', 'δ', '∞', 'φ', 'ε', '∩',
	'≡', '±', '≥', '≤', '⌠', '⌡', '÷', '≈',
	'°', '∙', '·', '√', 'ⁿ', '²', '■', ' ',
}

// cp437Reverse is built once for non-ASCII lookups.
var cp437Reverse = func() map[rune]byte {
	m := make(map[rune]byte, len(cp437High))
	for i, r := range cp437High {
		m[r] = byte(0x80 + i)
	}
	return m
}()

// EncodeCP437 encodes s to CP437 bytes. ok is false when any rune has no
// CP437 representation.
func EncodeCP437(s string) (encoded []byte, ok bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r <= 0x7F {
			out = append(out, byte(r))
			continue
		}
		b, found := cp437Reverse[r]
		if !found {
			return nil, false
		}
		out = append(out, b)
	}
	return out, true
}

// DecodeCP437 decodes CP437 bytes back to a string. Only the tests use it,
// to round-trip encoded names.
func DecodeCP437(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		if c < 0x80 {
			runes[i] = rune(c)
		} else {
			runes[i] = cp437High[c-0x80]
		}
	}
	return string(runes)
}
