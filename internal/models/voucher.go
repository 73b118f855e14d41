package models

import (
	"regexp"
	"strconv"
	"strings"
)

// VoucherCodeLength is the formatted length of a complete voucher,
// XX-XXXX-XXXX-XXXX-XXXX.
const VoucherCodeLength = 22

var voucherGroups = []int{2, 4, 4, 4, 4}

// FormatVoucherCode upper-cases raw input and inserts separators between the
// 2-4-4-4-4 groups. Characters past the last group are dropped, so the result
// never exceeds VoucherCodeLength runes.
func FormatVoucherCode(input string) string {
	raw := []rune(strings.ToUpper(strings.ReplaceAll(input, "-", "")))

	var b strings.Builder
	pos := 0
	for i, size := range voucherGroups {
		if pos >= len(raw) {
			break
		}
		if i > 0 {
			b.WriteByte('-')
		}
		end := pos + size
		if end > len(raw) {
			end = len(raw)
		}
		b.WriteString(string(raw[pos:end]))
		pos = end
	}

	return b.String()
}

// RemoveLastVoucherChar deletes the last character, taking a dangling
// separator with it.
func RemoveLastVoucherChar(code string) string {
	r := []rune(code)
	switch {
	case len(r) == 0:
		return code
	case r[len(r)-1] == '-' && len(r) >= 2:
		return string(r[:len(r)-2])
	default:
		return string(r[:len(r)-1])
	}
}

// PromoIDFromCode reads the leading digits of a voucher once separators are
// stripped. Codes without leading digits yield 0, meaning "no promo id".
func PromoIDFromCode(code string) int64 {
	stripped := strings.TrimSpace(strings.ReplaceAll(code, "-", ""))
	end := 0
	for end < len(stripped) && stripped[end] >= '0' && stripped[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	id, err := strconv.ParseInt(stripped[:end], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// VoucherPattern validates complete voucher codes.
type VoucherPattern struct {
	re *regexp.Regexp
}

func CompileVoucherPattern(expr string) (*VoucherPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &VoucherPattern{re: re}, nil
}

func (p *VoucherPattern) Matches(code string) bool {
	return p.re.MatchString(code)
}
