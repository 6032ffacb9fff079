package swift

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Violation is a single syntactic rule breach.
type Violation struct {
	Field   string
	Message string
}

// ValidationReport collects every violation found; an empty report is a
// pass. Violations are never short-circuited so callers can surface a
// complete batch of errors at once (§4.3).
type ValidationReport struct {
	Violations []Violation
}

func (r *ValidationReport) add(field, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationReport) Passed() bool { return len(r.Violations) == 0 }

var (
	referenceRegex = regexp.MustCompile(`^[A-Z0-9/\-?:().,'+\s]{1,16}$`)
	bicRegex       = regexp.MustCompile(`^[A-Z]{4}[A-Z]{2}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
)

const (
	maxAmount = "999999999999.99"
)

var maxAmountDecimal = decimal.RequireFromString(maxAmount)

// isSwiftX reports whether a rune belongs to the printable-ASCII "SWIFT X"
// character set (newline is allowed in multi-line fields).
func isSwiftX(r rune) bool {
	return r == '\n' || (r >= 0x20 && r <= 0x7E)
}

func checkCharset(report *ValidationReport, field, value string) {
	for _, r := range value {
		if !isSwiftX(r) {
			report.add(field, "contains a character outside the SWIFT X set: %q", r)
			return
		}
	}
}

func checkLines(report *ValidationReport, field string, lines []string, maxLines, maxLen int) {
	if len(lines) > maxLines {
		report.add(field, "has %d lines, exceeds limit of %d", len(lines), maxLines)
	}
	for i, l := range lines {
		if len(l) > maxLen {
			report.add(field, "line %d exceeds %d characters", i+1, maxLen)
		}
	}
}

func checkBIC(report *ValidationReport, field, bic string) {
	if !bicRegex.MatchString(bic) {
		report.add(field, "invalid BIC format: %q", bic)
	}
}

// ValidateMT103 runs every syntactic check named in §4.3 and returns a
// report containing all violations found.
func ValidateMT103(msg *MT103Message) *ValidationReport {
	report := &ValidationReport{}
	now := time.Now().UTC()

	upperRef := strings.ToUpper(msg.TransactionReference)
	if !referenceRegex.MatchString(upperRef) {
		report.add("transactionReference", "does not match SWIFT reference grammar: %q", msg.TransactionReference)
	}

	if len(msg.Currency) != 3 || !isAllLetters(msg.Currency) {
		report.add("currency", "must be exactly 3 letters: %q", msg.Currency)
	} else if !IsValidCurrency(msg.Currency) {
		report.add("currency", "not a recognised ISO 4217 code: %q", msg.Currency)
	}

	if !msg.ValueDate.IsZero() {
		lower := now.AddDate(0, 0, -365)
		upper := now.AddDate(0, 0, 365)
		if msg.ValueDate.Before(lower) || msg.ValueDate.After(upper) {
			report.add("valueDate", "outside the permitted window: %s", msg.ValueDate.Format("2006-01-02"))
		}
	}

	checkAmount(report, "amount", msg.Amount)

	if msg.HasOriginalAmount {
		checkAmount(report, "originalAmount", msg.OriginalAmount)
		if len(msg.OriginalCurrency) != 3 || !isAllLetters(msg.OriginalCurrency) || !IsValidCurrency(msg.OriginalCurrency) {
			report.add("originalCurrency", "not a recognised ISO 4217 code: %q", msg.OriginalCurrency)
		}
	}

	checkParty(report, "orderingCustomer", msg.OrderingCustomer)
	checkParty(report, "beneficiaryCustomer", msg.BeneficiaryCustomer)

	for field, inst := range map[string]InstitutionRef{
		"orderingInstitution":     msg.OrderingInstitution,
		"sendersCorrespondent":    msg.SendersCorrespondent,
		"receiversCorrespondent":  msg.ReceiversCorrespondent,
		"intermediaryInstitution": msg.IntermediaryInstitution,
		"accountWithInstitution":  msg.AccountWithInstitution,
	} {
		if inst.IsBIC && !inst.Empty() {
			checkBIC(report, field, inst.Value)
		}
	}

	checkCharset(report, "remittanceInformation", strings.Join(msg.RemittanceInformation, "\n"))
	checkLines(report, "remittanceInformation", msg.RemittanceInformation, 4, 35)
	checkCharset(report, "senderToReceiverInfo", strings.Join(msg.SenderToReceiverInfo, "\n"))
	checkLines(report, "senderToReceiverInfo", msg.SenderToReceiverInfo, 6, 35)

	if msg.ChargeDetails != nil {
		switch msg.ChargeDetails.Bearer {
		case "BEN", "OUR", "SHA":
		default:
			report.add("chargeDetails.bearer", "must be one of BEN, OUR, SHA: %q", msg.ChargeDetails.Bearer)
		}
		if msg.ChargeDetails.HasChargeAmount {
			checkAmount(report, "chargeDetails.chargeAmount", msg.ChargeDetails.ChargeAmount)
			if len(msg.ChargeDetails.ChargeCurrency) != 3 || !IsValidCurrency(msg.ChargeDetails.ChargeCurrency) {
				report.add("chargeDetails.chargeCurrency", "required and must be a valid ISO 4217 code when chargeAmount is present")
			}
		}
	}

	return report
}

// ValidateMT202 runs the subset of §4.3's checks applicable to MT202:
// reference grammar, currency, amount and BIC checks. MT202 carries no
// customer parties or free-text fields in this implementation's scope.
func ValidateMT202(msg *MT202Message) *ValidationReport {
	report := &ValidationReport{}

	upperRef := strings.ToUpper(msg.TransactionReference)
	if !referenceRegex.MatchString(upperRef) {
		report.add("transactionReference", "does not match SWIFT reference grammar: %q", msg.TransactionReference)
	}
	if len(msg.Currency) != 3 || !isAllLetters(msg.Currency) || !IsValidCurrency(msg.Currency) {
		report.add("currency", "not a recognised ISO 4217 code: %q", msg.Currency)
	}
	checkAmount(report, "amount", msg.Amount)

	for field, inst := range map[string]InstitutionRef{
		"orderingInstitution":     msg.OrderingInstitution,
		"beneficiaryInstitution":  msg.BeneficiaryInstitution,
		"sendersCorrespondent":    msg.SendersCorrespondent,
		"receiversCorrespondent":  msg.ReceiversCorrespondent,
		"intermediaryInstitution": msg.IntermediaryInstitution,
		"accountWithInstitution":  msg.AccountWithInstitution,
	} {
		if inst.IsBIC && !inst.Empty() {
			checkBIC(report, field, inst.Value)
		}
	}

	return report
}

func checkAmount(report *ValidationReport, field string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		report.add(field, "must be greater than zero: %s", amount.String())
		return
	}
	if amount.GreaterThan(maxAmountDecimal) {
		report.add(field, "exceeds maximum of %s: %s", maxAmount, amount.String())
	}
	if amount.Exponent() < -2 {
		report.add(field, "has more than 2 fractional digits: %s", amount.String())
	}
}

func checkParty(report *ValidationReport, field string, p Party) {
	switch v := p.(type) {
	case PartyWithBIC:
		checkBIC(report, field+".bic", v.BIC)
		checkCharset(report, field+".name", v.Name)
	case PartyNameAddress:
		checkCharset(report, field+".name", strings.Join(v.Name, "\n"))
		checkLines(report, field+".name", v.Name, 4, 35)
		checkCharset(report, field+".address", strings.Join(v.Address, "\n"))
		checkLines(report, field+".address", v.Address, 3, 35)
		if len(v.Address) == 0 {
			report.add(field+".address", "name/address party variant requires a non-empty address")
		}
	default:
		report.add(field, "missing party information")
	}
}

// IsSwiftXText reports whether every rune in value belongs to the SWIFT X
// character set. Exported so compliance's defence-in-depth recheck (§4.4)
// can reuse the same rule C3 applies.
func IsSwiftXText(value string) bool {
	for _, r := range value {
		if !isSwiftX(r) {
			return false
		}
	}
	return true
}

// ValidateBIC reports whether bic matches the SWIFT BIC grammar (8 or 11
// uppercase alphanumeric characters).
func ValidateBIC(bic string) bool {
	return bicRegex.MatchString(strings.ToUpper(bic))
}

func isAllLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return len(s) > 0
}
