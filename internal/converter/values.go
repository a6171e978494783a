package converter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// =============================================================================
// CELL VALUE PARSERS
// =============================================================================
//
// Every parser returns nil for empty or unparseable input and never fails.
// Values are folded with NFKC before parsing, so full-width digits and
// symbols typed with a CJK input method ("２０２５／０８／２１", "＄１，０００")
// parse like their ASCII forms.
//
// =============================================================================

// ParseValue converts a raw cell according to a type hint. ok is false when
// a non-empty cell could not be parsed and was resolved to nil.
func ParseValue(raw string, hint types.TypeHint) (value any, ok bool) {
	switch hint {
	case types.TypeDate:
		value = ParseDate(raw)
	case types.TypeCurrency, types.TypeNumber:
		value = ParseDecimal(raw)
	case types.TypeBoolean:
		value = ParseBoolean(raw)
	default:
		value = ParseText(raw)
	}

	if value == nil {
		return nil, strings.TrimSpace(raw) == ""
	}
	return value, true
}

// ParseText trims the cell; an empty result is nil.
func ParseText(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return s
}

var (
	// 2025/08/21, 2025-8-21, 2025.08.21, optionally followed by a time.
	numericDatePattern = regexp.MustCompile(`^(\d{4})[/\-.](\d{1,2})[/\-.](\d{1,2})(?:[\sT].*)?$`)

	// 2025年8月21日, optionally followed by a time.
	cjkDatePattern = regexp.MustCompile(`^(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日?(?:\s.*)?$`)

	// Meridiem markers are dropped; only the calendar date is kept.
	meridiemPattern = regexp.MustCompile(`(?i)上午|下午|中午|晚上|凌晨|\b[ap]\.?m\.?\b`)
)

// ParseDate parses the date formats found in the source sheets and returns a
// types.Date, or nil. Dates that do not exist on the calendar are nil.
//
// SUPPORTED FORMATS:
//   - 2025/08/21, 2025-08-21, 2025/8/21
//   - any of the above followed by a time: "2025/8/21 15:27",
//     "2025/8/21 下午3:27", "2025-08-21T15:27:00Z"
//   - 2025年8月21日
func ParseDate(raw string) any {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return nil
	}

	s = strings.TrimSpace(meridiemPattern.ReplaceAllString(s, " "))

	m := numericDatePattern.FindStringSubmatch(s)
	if m == nil {
		m = cjkDatePattern.FindStringSubmatch(s)
	}
	if m == nil {
		return nil
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	d, ok := types.NewDate(year, time.Month(month), day)
	if !ok {
		return nil
	}
	return d
}

// currencyTokens are removed before parsing amounts. Longer tokens come
// first so "NT$" is removed before "$".
var currencyTokens = []string{
	"NTD", "TWD", "USD", "RMB", "CNY",
	"NT$", "US$", "HK$",
	"$", "¥", "€", "£", "元", "圓",
	",", "_",
}

// plainNumberPattern is the only amount shape accepted after currency tokens
// are removed. Exponents ("1e99999999") are rejected: decimal would accept
// them and expand every digit when the value is printed.
var plainNumberPattern = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)$`)

// ParseDecimal parses currency amounts and plain numbers into an exact
// decimal.Decimal, or nil.
//
// EXAMPLES:
//   - "NT$86,000" -> 86000
//   - "$4,000.00" -> 4000
//   - "(1,200)"   -> -1200
//   - "-", "", "N/A", "1e5" -> nil
func ParseDecimal(raw string) any {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == "" {
		return nil
	}

	upper := strings.ToUpper(s)
	for _, token := range currencyTokens {
		upper = strings.ReplaceAll(upper, token, "")
	}
	s = strings.Join(strings.Fields(upper), "")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	if !plainNumberPattern.MatchString(s) {
		return nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}
	return d
}

var booleanTokens = map[string]bool{
	"true": true, "false": false,
	"t": true, "f": false,
	"yes": true, "no": false,
	"y": true, "n": false,
	"1": true, "0": false,
	"on": true, "off": false,
	"是": true, "否": false,
	"有": true, "無": false, "无": false, "沒有": false, "没有": false,
	"對": true, "錯": false, "对": true, "错": false,
	"v": true, "x": false,
	"✓": true, "✔": true, "✗": false, "✘": false,
}

// ParseBoolean recognizes yes/no tokens in English and Chinese, case
// insensitively. Anything else is nil.
func ParseBoolean(raw string) any {
	s := strings.ToLower(strings.TrimSpace(norm.NFKC.String(raw)))
	if s == "" {
		return nil
	}
	if b, ok := booleanTokens[s]; ok {
		return b
	}
	return nil
}
