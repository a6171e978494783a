package converter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input    string
		expected string // "" means nil
	}{
		{input: "2025/08/21", expected: "2025-08-21"},
		{input: "2025-08-21", expected: "2025-08-21"},
		{input: "2025/8/21 15:27", expected: "2025-08-21"},
		{input: "2025/8/21 下午3:27", expected: "2025-08-21"},
		{input: "2025/8/21 上午 09:05:00", expected: "2025-08-21"},
		{input: "2025/8/21 3:27 PM", expected: "2025-08-21"},
		{input: "2025-08-21T15:27:00Z", expected: "2025-08-21"},
		{input: "2025.8.1", expected: "2025-08-01"},
		{input: "2025年8月21日", expected: "2025-08-21"},
		{input: "２０２５／０８／２１", expected: "2025-08-21"},
		{input: "  2025/01/15  ", expected: "2025-01-15"},
		{input: "", expected: ""},
		{input: "   ", expected: ""},
		{input: "N/A", expected: ""},
		{input: "21/08/2025", expected: ""},
		{input: "2025/02/30", expected: ""},
		{input: "2025/13/01", expected: ""},
		{input: "2025/8/21abc", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseDate(tt.input)
			if tt.expected == "" {
				assert.Nil(t, got)
				return
			}
			require.IsType(t, types.Date{}, got)
			assert.Equal(t, tt.expected, got.(types.Date).String())
		})
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		input    string
		expected string // "" means nil
	}{
		{input: "NT$86,000", expected: "86000"},
		{input: "$4,000.00", expected: "4000"},
		{input: "4000", expected: "4000"},
		{input: " 1,234.5 ", expected: "1234.5"},
		{input: "US$ 12.30", expected: "12.3"},
		{input: "￥500", expected: "500"},
		{input: "1,200元", expected: "1200"},
		{input: "＄１，０００", expected: "1000"},
		{input: "(1,200)", expected: "-1200"},
		{input: "-350", expected: "-350"},
		{input: "0", expected: "0"},
		{input: "", expected: ""},
		{input: "-", expected: ""},
		{input: "N/A", expected: ""},
		{input: "12abc", expected: ""},
		{input: "1e99999999", expected: ""},
		{input: "1E5", expected: ""},
		{input: "2.5e-3", expected: ""},
		{input: "Infinity", expected: ""},
		{input: "1.2.3", expected: ""},
		{input: "+12", expected: "12"},
		{input: ".5", expected: "0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseDecimal(tt.input)
			if tt.expected == "" {
				assert.Nil(t, got)
				return
			}
			require.IsType(t, decimal.Decimal{}, got)
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(got.(decimal.Decimal)),
				"got %s, want %s", got.(decimal.Decimal).String(), tt.expected)
		})
	}
}

func TestParseBoolean(t *testing.T) {
	trueInputs := []string{"true", "TRUE", "t", "Yes", "y", "1", "是", "有", "對", "V", "✓", " on "}
	falseInputs := []string{"false", "F", "no", "N", "0", "否", "無", "无", "錯", "x", "✗", "off"}
	nilInputs := []string{"", "  ", "maybe", "2", "是的"}

	for _, in := range trueInputs {
		assert.Equal(t, true, ParseBoolean(in), in)
	}
	for _, in := range falseInputs {
		assert.Equal(t, false, ParseBoolean(in), in)
	}
	for _, in := range nilInputs {
		assert.Nil(t, ParseBoolean(in), in)
	}
}

func TestParseText(t *testing.T) {
	assert.Equal(t, "張小明", ParseText("  張小明 "))
	assert.Nil(t, ParseText(""))
	assert.Nil(t, ParseText(" \t "))
}

func TestParseValue(t *testing.T) {
	v, ok := ParseValue("2025/08/21", types.TypeDate)
	assert.True(t, ok)
	assert.Equal(t, "2025-08-21", v.(types.Date).String())

	v, ok = ParseValue("garbage", types.TypeCurrency)
	assert.False(t, ok)
	assert.Nil(t, v)

	v, ok = ParseValue("", types.TypeBoolean)
	assert.True(t, ok)
	assert.Nil(t, v)

	v, ok = ParseValue("12", types.TypeNumber)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(12).Equal(v.(decimal.Decimal)))

	v, ok = ParseValue(" x ", "")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
