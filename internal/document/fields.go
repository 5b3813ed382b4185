package document

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// CodeField returns "{field}_code", or "{field}_codes" for multi-valued fields.
func CodeField(field string, multi bool) string {
	if multi {
		return field + "_codes"
	}
	return field + "_code"
}

// LocaleField returns "{field}_{lang}", suffixed with "s" for multi-valued
// fields. Only the base language of the locale is used.
func LocaleField(field string, locale language.Tag, multi bool) string {
	name := field + "_" + Language(locale)
	if multi {
		name += "s"
	}
	return name
}

// Language returns the ISO 639 base language of a locale, e.g. "de" for de-AT.
func Language(locale language.Tag) string {
	base, _ := locale.Base()
	return base.String()
}

// PriceField returns "{currency}_{group}_price" in lower case.
func PriceField(currency, group string) string {
	return strings.ToLower(currency + "_" + group + "_price")
}

// StdPriceField returns "{currency}_{group}_std_price" in lower case.
func StdPriceField(currency, group string) string {
	return strings.ToLower(currency + "_" + group + "_std_price")
}

// MOQField returns "{group}_moq".
func MOQField(group string) string {
	return strings.ToLower(group) + "_moq"
}

// AvailableField returns "{group}_available".
func AvailableField(group string) string {
	return strings.ToLower(group) + "_available"
}

// AssetFields returns the path and type field names of the asset at position i.
func AssetFields(purpose, size string, i int) (path, typ string) {
	prefix := purpose + "_" + size + "_" + strconv.Itoa(i)
	return prefix + "_asset_path", prefix + "_asset_type"
}

// BasePriceFields returns the divisor and unit field names of the unit
// pricing pair at position i.
func BasePriceFields(i int) (divisor, unit string) {
	prefix := "base_price_" + strconv.Itoa(i)
	return prefix + "_divisor", prefix + "_unit"
}

// GroupCodesField returns "{kind}_{group}_codes", e.g. "logos_badges_codes".
func GroupCodesField(kind, group string) string {
	return kind + "_" + strings.ToLower(group) + "_codes"
}
