// =============================================================================
// Sheet Sync - Cell Cleanup Rules
// =============================================================================
//
// Cleanup rules rewrite raw cell strings before they are converted by type
// hint. They are declared per source sheet, keyed by the source header, and
// are useful for fixing sheet-specific habits:
//   - Code lookups ("男" -> "M", "P" -> "paid")
//   - Prefixes and zero padding on identifiers
//   - Replacing placeholder text ("N/A", "待補") with an empty cell
//
// A rule that cannot be applied leaves the cell unchanged; rules never
// reject a row.
//
// =============================================================================

package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// CleanupRule is the list of actions applied to one source column.
type CleanupRule struct {
	// Header is the source header as it appears in the sheet.
	Header string `yaml:"header"`

	// Actions are applied in order.
	Actions []Action `yaml:"actions"`
}

// Action is a single cleanup step.
type Action struct {
	// Type is the action to apply.
	// Supported types:
	//   - "trim"                 : Remove leading and trailing whitespace
	//   - "uppercase"            : Convert to uppercase
	//   - "lowercase"            : Convert to lowercase
	//   - "prepend_string"       : Add Value to the beginning
	//   - "append_string"        : Add Value to the end
	//   - "replace"              : Replace Find with Value
	//   - "regex_replace"        : Replace the pattern in Find with Value
	//   - "pad_zeros_to_length"  : Pad with leading zeros to length Value
	//   - "remove_leading_zeros" : Strip leading zeros, keeping one
	//   - "extract_digits"       : Keep digits only
	//   - "normalize_whitespace" : Collapse whitespace runs to one space
	//   - "lookup"               : Replace using LookupTable, unknown values kept
	//   - "lookup_with_default"  : Replace using LookupTable, unknown values -> Value
	//   - "if_empty_use_default" : Use Value when the cell is blank
	//   - "clear_if_equals"      : Blank the cell when it equals any of Values
	Type string `yaml:"type"`

	// Value is the parameter for the action.
	Value string `yaml:"value"`

	// Values is used by "clear_if_equals".
	Values []string `yaml:"values,omitempty"`

	// Find is used for "replace" and "regex_replace".
	Find string `yaml:"find,omitempty"`

	// LookupTable is used for "lookup" and "lookup_with_default".
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`

	pattern *regexp.Regexp
}

var (
	digitsPattern     = regexp.MustCompile(`\d+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// CompileRules validates the rules and indexes them by header.
//
// RETURNS:
//   - The rules keyed by source header.
//   - An error naming the first invalid rule (unknown type, bad pattern,
//     bad length).
func CompileRules(rules []CleanupRule) (map[string][]Action, error) {
	compiled := make(map[string][]Action, len(rules))

	for _, rule := range rules {
		if rule.Header == "" {
			return nil, fmt.Errorf("cleanup rule without header")
		}
		for i, action := range rule.Actions {
			switch action.Type {
			case "trim", "uppercase", "lowercase", "prepend_string", "append_string",
				"replace", "remove_leading_zeros", "extract_digits", "normalize_whitespace",
				"lookup", "lookup_with_default", "if_empty_use_default", "clear_if_equals":
			case "regex_replace":
				re, err := regexp.Compile(action.Find)
				if err != nil {
					return nil, fmt.Errorf("header %q action %d: invalid regex pattern: %w", rule.Header, i+1, err)
				}
				action.pattern = re
			case "pad_zeros_to_length":
				if n, err := strconv.Atoi(action.Value); err != nil || n <= 0 {
					return nil, fmt.Errorf("header %q action %d: invalid length %q", rule.Header, i+1, action.Value)
				}
			default:
				return nil, fmt.Errorf("header %q action %d: unknown action type %q", rule.Header, i+1, action.Type)
			}
			compiled[rule.Header] = append(compiled[rule.Header], action)
		}
	}

	return compiled, nil
}

// ApplyActions runs actions over a raw cell in order.
func ApplyActions(value string, actions []Action) string {
	for _, action := range actions {
		value = applyAction(value, action)
	}
	return value
}

// applyAction applies a single cleanup action.
func applyAction(value string, action Action) string {
	switch action.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "trim":
		return strings.TrimSpace(value)

	case "uppercase":
		return strings.ToUpper(value)

	case "lowercase":
		return strings.ToLower(value)

	case "prepend_string":
		// EXAMPLE:
		//   Input: "123456"
		//   Action: prepend_string with value "E"
		//   Output: "E123456"
		if strings.TrimSpace(value) == "" {
			return value
		}
		return action.Value + value

	case "append_string":
		if strings.TrimSpace(value) == "" {
			return value
		}
		return value + action.Value

	case "replace":
		if action.Find == "" {
			return value
		}
		return strings.ReplaceAll(value, action.Find, action.Value)

	case "regex_replace":
		// EXAMPLE:
		//   Input: "E-00123"
		//   Action: regex_replace with find "^E-0*" and value "E"
		//   Output: "E123"
		re := action.pattern
		if re == nil {
			var err error
			if re, err = regexp.Compile(action.Find); err != nil {
				return value
			}
		}
		return re.ReplaceAllString(value, action.Value)

	case "normalize_whitespace":
		return strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))

	// =========================================================================
	// IDENTIFIER FORMATTING
	// =========================================================================

	case "pad_zeros_to_length":
		// EXAMPLE:
		//   Input: "123"
		//   Action: pad_zeros_to_length with value "6"
		//   Output: "000123"
		length, err := strconv.Atoi(action.Value)
		if err != nil || strings.TrimSpace(value) == "" {
			return value
		}
		return padLeft(strings.TrimSpace(value), length, '0')

	case "remove_leading_zeros":
		trimmed := strings.TrimLeft(strings.TrimSpace(value), "0")
		if trimmed == "" && strings.TrimSpace(value) != "" {
			return "0"
		}
		return trimmed

	case "extract_digits":
		return strings.Join(digitsPattern.FindAllString(value, -1), "")

	// =========================================================================
	// LOOKUPS AND DEFAULTS
	// =========================================================================

	case "lookup":
		// EXAMPLE:
		//   Input: "P"
		//   Action: lookup with lookup_table {"P": "paid", "U": "unpaid"}
		//   Output: "paid"
		if replacement, exists := action.LookupTable[strings.TrimSpace(value)]; exists {
			return replacement
		}
		return value

	case "lookup_with_default":
		if replacement, exists := action.LookupTable[strings.TrimSpace(value)]; exists {
			return replacement
		}
		return action.Value

	case "if_empty_use_default":
		if strings.TrimSpace(value) == "" {
			return action.Value
		}
		return value

	case "clear_if_equals":
		// EXAMPLE:
		//   Input: "N/A"
		//   Action: clear_if_equals with values ["N/A", "待補", "-"]
		//   Output: ""
		trimmed := strings.TrimSpace(value)
		for _, v := range action.Values {
			if strings.EqualFold(trimmed, v) {
				return ""
			}
		}
		return value

	default:
		return value
	}
}

// padLeft pads s on the left with padChar to the target rune length.
func padLeft(s string, length int, padChar rune) string {
	n := utf8.RuneCountInString(s)
	if n >= length {
		return s
	}
	return strings.Repeat(string(padChar), length-n) + s
}
