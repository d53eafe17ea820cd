package alerting

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD renders "$42,000.00".
func FormatUSD(d decimal.Decimal) string {
	return "$" + groupDecimal(d, 2, ",", ".")
}

// FormatAlt renders a local-currency amount. IDR has no minor unit and uses
// "." for thousands ("Rp42.000.000"); other currencies get an ISO prefix.
func FormatAlt(d decimal.Decimal, currency string) string {
	switch strings.ToLower(currency) {
	case "idr":
		return "Rp" + groupDecimal(d, 0, ".", ",")
	case "usd":
		return FormatUSD(d)
	default:
		return strings.ToUpper(currency) + " " + groupDecimal(d, 2, ",", ".")
	}
}

func groupDecimal(d decimal.Decimal, places int32, thousands, point string) string {
	fixed := d.StringFixed(places)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	intPart, frac, hasFrac := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(thousands)
		b.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		b.WriteString(point)
		b.WriteString(frac)
	}
	return b.String()
}
