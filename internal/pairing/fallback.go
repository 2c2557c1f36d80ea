package pairing

import "strconv"

// FallbackCode derives a six digit demo code from number. The same number
// always yields the same code; the result lies in [100000, 999999].
func FallbackCode(number string) string {
	var h int32
	for _, c := range number {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v%900000+100000, 10)
}
