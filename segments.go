package main

// Encodings a carrier picks for an SMS body.
const (
	EncodingGSM7 = "gsm7"
	EncodingUCS2 = "ucs2"
)

const (
	singleSegmentBytes    = 140
	multipartSegmentBytes = 140 - 6 // UDH header
)

// GSM 03.38 default alphabet
var gsm7BasicSet = func() map[rune]bool {
	set := map[rune]bool{}
	for _, r := range "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà" {
		set[r] = true
	}
	return set
}()

// GSM 03.38 extension table; each costs an escape septet
var gsm7ExtendedSet = map[rune]bool{
	'^': true, '{': true, '}': true, '\\': true, '[': true, '~': true,
	']': true, '|': true, '€': true,
}

// bitWidth returns the bits a rune occupies under an encoding.
type bitWidth func(rune) int

var (
	gsm7Width bitWidth = func(r rune) int {
		if gsm7ExtendedSet[r] {
			return 14
		}
		return 7
	}
	ucs2Width bitWidth = func(r rune) int {
		if (r <= 0xD7FF) || ((r >= 0xE000) && (r <= 0xFFFF)) {
			return 16
		}
		return 32
	}
)

func (fn bitWidth) bytes(input string) (n int) {
	for _, point := range input {
		n += fn(point)
	}
	if n%8 != 0 {
		n += 8 - n%8
	}
	return n / 8
}

func (fn bitWidth) split(input string, limit int) (segments []string) {
	limit *= 8
	points := []rune(input)
	var start, length int
	for i := 0; i < len(points); i++ {
		length += fn(points[i])
		if length > limit {
			segments = append(segments, string(points[start:i]))
			start, length = i, 0
			i--
		}
	}
	if length > 0 {
		segments = append(segments, string(points[start:]))
	}
	return
}

// BodyEncoding reports gsm7 when every rune is in the GSM alphabet, ucs2 otherwise.
func BodyEncoding(body string) string {
	for _, r := range body {
		if !gsm7BasicSet[r] && !gsm7ExtendedSet[r] {
			return EncodingUCS2
		}
	}
	return EncodingGSM7
}

// SplitSegments splits body into the parts an SMS carrier bills for.
func SplitSegments(body string) []string {
	if body == "" {
		return nil
	}
	width := gsm7Width
	if BodyEncoding(body) == EncodingUCS2 {
		width = ucs2Width
	}
	if width.bytes(body) <= singleSegmentBytes {
		return []string{body}
	}
	return width.split(body, multipartSegmentBytes)
}
