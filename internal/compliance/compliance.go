// Package compliance implements the business-rule layer that runs after
// syntactic validation succeeds (§4.4): amount limits, cross-field
// consistency, and a pluggable sanctions screening hook.
package compliance

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/deltran/swift-processor/internal/swift"
)

// Severity ranks a compliance finding. PASS is defined as "no violation at
// or above High" (§4.4).
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityWarning  Severity = "Warning"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Violation is one compliance finding.
type Violation struct {
	Type        string
	Field       string
	Description string
	Severity    Severity
	Timestamp   time.Time
}

// Report is the output of a compliance evaluation. Warnings never affect
// Passed(); only violations at High or above do.
type Report struct {
	Violations []Violation
	Warnings   []Violation
}

// Passed reports compliance PASS per §4.4: no violation with severity
// High or Critical.
func (r *Report) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityHigh || v.Severity == SeverityCritical {
			return false
		}
	}
	return true
}

// SanctionsHit is what a SanctionsHook returns when it finds a match.
type SanctionsHit struct {
	Label    string
	Severity Severity
}

// SanctionsHook screens a party's name and account. The default
// implementation is a case-insensitive substring match against a
// configured keyword set (§4.4); callers needing fuzzy/Levenshtein or
// database-backed screening (as the teacher's sanctions.go demonstrates)
// can supply their own hook with the same signature.
type SanctionsHook func(name, account string) *SanctionsHit

// DefaultSanctionsHook builds a SanctionsHook that flags any party whose
// name or account contains one of keywords, case-insensitively, as a
// Critical hit.
func DefaultSanctionsHook(keywords []string) SanctionsHook {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(strings.TrimSpace(k))
	}
	return func(name, account string) *SanctionsHit {
		haystack := strings.ToLower(name + " " + account)
		for _, k := range lowered {
			if k != "" && strings.Contains(haystack, k) {
				return &SanctionsHit{Label: k, Severity: SeverityCritical}
			}
		}
		return nil
	}
}

// Clock lets tests pin "now" without reaching for a fake system clock.
type Clock func() time.Time

// Validator evaluates a decoded MT103Message against the compliance
// rules in §4.4.
type Validator struct {
	sanctionsHook SanctionsHook
	now           Clock
}

// New builds a Validator. A nil hook disables sanctions screening
// entirely (every party passes).
func New(hook SanctionsHook) *Validator {
	if hook == nil {
		hook = func(string, string) *SanctionsHit { return nil }
	}
	return &Validator{sanctionsHook: hook, now: time.Now}
}

var (
	amountCritical = decimal.RequireFromString("10000000")
	amountWarning  = decimal.RequireFromString("1000000")
	bearerWarning  = decimal.RequireFromString("100")
)

// Evaluate runs every rule in §4.4 against msg and returns the combined
// report. It is orthogonal to swift.ValidateMT103 and assumes that check
// already passed.
func (v *Validator) Evaluate(msg *swift.MT103Message) *Report {
	report := &Report{}
	now := v.now().UTC()

	add := func(typ, field, desc string, sev Severity) {
		report.Violations = append(report.Violations, Violation{
			Type: typ, Field: field, Description: desc, Severity: sev, Timestamp: now,
		})
	}
	warn := func(typ, field, desc string) {
		report.Warnings = append(report.Warnings, Violation{
			Type: typ, Field: field, Description: desc, Severity: SeverityWarning, Timestamp: now,
		})
	}

	if msg.HasOriginalAmount && msg.OriginalCurrency == msg.Currency {
		add("CrossFieldCurrency", "originalCurrency", "original currency equals settlement currency", SeverityLow)
	}

	if diffDays(msg.ValueDate, now) > 365 {
		add("ValueDateRange", "valueDate", "value date is more than 365 days from today", SeverityMedium)
	}

	orderingAccount, orderingName := partyIdentifiers(msg.OrderingCustomer)
	beneficiaryAccount, beneficiaryName := partyIdentifiers(msg.BeneficiaryCustomer)
	if orderingAccount != "" && beneficiaryAccount != "" &&
		strings.EqualFold(orderingAccount, beneficiaryAccount) {
		add("CustomerEquality", "orderingCustomer/beneficiaryCustomer", "ordering and beneficiary accounts are identical", SeverityMedium)
	}

	switch {
	case msg.Amount.GreaterThan(amountCritical):
		add("AmountLimit", "amount", fmt.Sprintf("amount %s exceeds the 10,000,000 limit", msg.Amount.String()), SeverityCritical)
	case msg.Amount.GreaterThanOrEqual(amountWarning):
		warn("AmountLimit", "amount", fmt.Sprintf("amount %s is at or above the 1,000,000 reporting threshold", msg.Amount.String()))
	}

	for field, hit := range map[string]*SanctionsHit{
		"orderingCustomer":    v.sanctionsHook(orderingName, orderingAccount),
		"beneficiaryCustomer": v.sanctionsHook(beneficiaryName, beneficiaryAccount),
	} {
		if hit != nil && hit.Severity == SeverityCritical {
			add("SanctionsHit", field, fmt.Sprintf("sanctions screening matched %q", hit.Label), SeverityCritical)
		}
	}

	for field, text := range map[string]string{
		"remittanceInformation": strings.Join(msg.RemittanceInformation, "\n"),
		"senderToReceiverInfo":  strings.Join(msg.SenderToReceiverInfo, "\n"),
	} {
		if text != "" && !swift.IsSwiftXText(text) {
			add("CharacterSet", field, "contains a character outside the SWIFT X set", SeverityHigh)
		}
	}

	if msg.ChargeDetails != nil && msg.ChargeDetails.Bearer == "BEN" && msg.Amount.LessThan(bearerWarning) {
		warn("ChargeBearerAmount", "chargeDetails.bearer", "bearer is BEN on a sub-100 amount")
	}

	log.Debug().
		Str("transactionReference", msg.TransactionReference).
		Int("violations", len(report.Violations)).
		Int("warnings", len(report.Warnings)).
		Bool("passed", report.Passed()).
		Msg("compliance evaluation complete")

	return report
}

func diffDays(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

func partyIdentifiers(p swift.Party) (account, name string) {
	switch v := p.(type) {
	case swift.PartyWithBIC:
		return v.Account, v.Name
	case swift.PartyNameAddress:
		return v.Account, strings.Join(v.Name, " ")
	default:
		return "", ""
	}
}
