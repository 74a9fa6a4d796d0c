package transfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCountry используется, когда страна пользователя не указана или не поддерживается
const DefaultCountry = "US"

// defaultAmountDecimals - знаков после запятой для валют без отдельного правила
const defaultAmountDecimals = 2

// CountryRule описывает формат номера счета и валюту страны
type CountryRule struct {
	AccountDigits int
	Currency      string
	UsdRate       decimal.Decimal
}

// Rules - таблица правил по странам, передаваемая валидатору и генератору номеров явно
type Rules struct {
	Countries            map[string]CountryRule
	FeeRestrictedCountry string
	SupportedCurrencies  []string
	// CurrencyDecimals - минимальная единица валюты; не больше масштаба колонок хранилища (8)
	CurrencyDecimals     map[string]int32
	RoutingNumber        *regexp.Regexp
}

// DefaultRules возвращает встроенную таблицу стран
func DefaultRules() *Rules {
	return &Rules{
		Countries: map[string]CountryRule{
			"US": {AccountDigits: 10, Currency: "USD", UsdRate: decimal.NewFromInt(1)},
			"PL": {AccountDigits: 26, Currency: "PLN", UsdRate: decimal.RequireFromString("0.25")},
			"GB": {AccountDigits: 8, Currency: "GBP", UsdRate: decimal.RequireFromString("1.27")},
			"DE": {AccountDigits: 10, Currency: "EUR", UsdRate: decimal.RequireFromString("1.08")},
			"FR": {AccountDigits: 11, Currency: "EUR", UsdRate: decimal.RequireFromString("1.08")},
			"CA": {AccountDigits: 12, Currency: "CAD", UsdRate: decimal.RequireFromString("0.73")},
			"AU": {AccountDigits: 9, Currency: "AUD", UsdRate: decimal.RequireFromString("0.66")},
			"JP": {AccountDigits: 7, Currency: "JPY", UsdRate: decimal.RequireFromString("0.0067")},
		},
		FeeRestrictedCountry: "PL",
		SupportedCurrencies:  []string{"USD", "PLN", "GBP", "EUR", "CAD", "AUD", "JPY"},
		CurrencyDecimals:     map[string]int32{"JPY": 0},
		RoutingNumber:        regexp.MustCompile(`^\d{9}$`),
	}
}

// NewRules строит таблицу из встроенной с учетом переопределений из окружения.
// Пустые значения оставляют встроенные правила.
func NewRules(accountDigits, feeRestrictedCountry string, supportedCurrencies []string) (*Rules, error) {
	rules := DefaultRules()
	if err := rules.ApplyAccountDigits(accountDigits); err != nil {
		return nil, err
	}
	if feeRestrictedCountry != "" {
		rules.FeeRestrictedCountry = strings.ToUpper(feeRestrictedCountry)
	}
	if len(supportedCurrencies) > 0 {
		rules.SupportedCurrencies = make([]string, 0, len(supportedCurrencies))
		for _, c := range supportedCurrencies {
			rules.SupportedCurrencies = append(rules.SupportedCurrencies, strings.ToUpper(c))
		}
	}
	return rules, nil
}

// AccountDigits возвращает длину номера счета для страны
func (r *Rules) AccountDigits(country string) (int, bool) {
	rule, ok := r.Countries[strings.ToUpper(country)]
	if !ok {
		return 0, false
	}
	return rule.AccountDigits, true
}

// IsSupportedCountry проверяет, есть ли страна в таблице
func (r *Rules) IsSupportedCountry(country string) bool {
	_, ok := r.Countries[strings.ToUpper(country)]
	return ok
}

// IsSupportedCurrency проверяет, поддерживается ли валюта
func (r *Rules) IsSupportedCurrency(currency string) bool {
	currency = strings.ToUpper(currency)
	for _, c := range r.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// AmountDecimals возвращает число знаков после запятой, допустимое для суммы в валюте
func (r *Rules) AmountDecimals(currency string) int32 {
	if d, ok := r.CurrencyDecimals[strings.ToUpper(currency)]; ok {
		return d
	}
	return defaultAmountDecimals
}

// ValidAmount проверяет, что сумма положительна и не мельче минимальной единицы валюты
func (r *Rules) ValidAmount(amount decimal.Decimal, currency string) bool {
	if !amount.IsPositive() {
		return false
	}
	return amount.Equal(amount.Truncate(r.AmountDecimals(currency)))
}

// UsdRates возвращает курсы из таблицы стран (используются как запасные и для начального заполнения)
func (r *Rules) UsdRates() map[string]decimal.Decimal {
	rates := make(map[string]decimal.Decimal, len(r.Countries))
	for _, rule := range r.Countries {
		rates[rule.Currency] = rule.UsdRate
	}
	return rates
}

// ApplyAccountDigits применяет переопределения вида "US:10,PL:26"
func (r *Rules) ApplyAccountDigits(overrides string) error {
	if strings.TrimSpace(overrides) == "" {
		return nil
	}

	for _, part := range strings.Split(overrides, ",") {
		country, digits, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return fmt.Errorf("invalid account digits entry %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(digits))
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid account digits for %s: %q", country, digits)
		}

		country = strings.ToUpper(strings.TrimSpace(country))
		rule, exists := r.Countries[country]
		if !exists {
			rule = CountryRule{Currency: "USD", UsdRate: decimal.NewFromInt(1)}
		}
		rule.AccountDigits = n
		r.Countries[country] = rule
	}
	return nil
}

// DigitsOnly удаляет из строки все символы, кроме цифр
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
