package swift

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RenderMT103 renders a MT103Message back onto the wire in block
// 1/2/4 form, following the same header defaults the teacher's generator
// used (session/sequence zero-fill, application id "F", service id "01").
func RenderMT103(senderBIC, receiverBIC string, msg *MT103Message) (string, error) {
	if err := requireMT103(msg); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("{1:F01%s0000000000}", padBIC(senderBIC)))
	sb.WriteString(fmt.Sprintf("{2:I103%sN}", padBIC(receiverBIC)))
	sb.WriteString("{4:\n")

	sb.WriteString(fmt.Sprintf(":20:%s\n", msg.TransactionReference))
	sb.WriteString(fmt.Sprintf(":23B:%s\n", msg.BankOperationCode))
	sb.WriteString(fmt.Sprintf(":32A:%s%s%s\n", FormatDate(msg.ValueDate), msg.Currency, FormatAmount(msg.Amount)))
	if msg.HasOriginalAmount {
		sb.WriteString(fmt.Sprintf(":33B:%s%s\n", msg.OriginalCurrency, FormatAmount(msg.OriginalAmount)))
	}
	sb.WriteString(renderParty("50K", "50A", msg.OrderingCustomer))
	if !msg.OrderingInstitution.Empty() {
		sb.WriteString(renderInstitution("52", msg.OrderingInstitution))
	}
	if !msg.SendersCorrespondent.Empty() {
		sb.WriteString(renderInstitution("53", msg.SendersCorrespondent))
	}
	if !msg.ReceiversCorrespondent.Empty() {
		sb.WriteString(renderInstitution("54", msg.ReceiversCorrespondent))
	}
	if !msg.IntermediaryInstitution.Empty() {
		sb.WriteString(renderInstitution("56", msg.IntermediaryInstitution))
	}
	if !msg.AccountWithInstitution.Empty() {
		sb.WriteString(renderInstitution("57", msg.AccountWithInstitution))
	}
	sb.WriteString(renderParty("59", "59A", msg.BeneficiaryCustomer))
	if len(msg.RemittanceInformation) > 0 {
		sb.WriteString(fmt.Sprintf(":70:%s\n", strings.Join(msg.RemittanceInformation, "\n")))
	}
	if msg.ChargeDetails != nil && msg.ChargeDetails.Bearer != "" {
		sb.WriteString(fmt.Sprintf(":71A:%s\n", msg.ChargeDetails.Bearer))
	}
	if msg.SendersCharges != "" {
		sb.WriteString(fmt.Sprintf(":71F:%s\n", msg.SendersCharges))
	}
	if msg.ReceiversCharges != "" {
		sb.WriteString(fmt.Sprintf(":71G:%s\n", msg.ReceiversCharges))
	}
	if len(msg.SenderToReceiverInfo) > 0 {
		sb.WriteString(fmt.Sprintf(":72:%s\n", strings.Join(msg.SenderToReceiverInfo, "\n")))
	}
	sb.WriteString("-}")

	return sb.String(), nil
}

func requireMT103(msg *MT103Message) error {
	if msg.TransactionReference == "" {
		return fmt.Errorf("transaction reference is required")
	}
	if msg.BankOperationCode == "" {
		return fmt.Errorf("bank operation code is required")
	}
	if msg.ValueDate.IsZero() {
		return fmt.Errorf("value date is required")
	}
	if msg.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if msg.Amount.IsZero() {
		return fmt.Errorf("amount is required")
	}
	if msg.OrderingCustomer == nil {
		return fmt.Errorf("ordering customer is required")
	}
	if msg.BeneficiaryCustomer == nil {
		return fmt.Errorf("beneficiary customer is required")
	}
	return nil
}

func renderParty(nameAddrTag, bicTag string, p Party) string {
	switch v := p.(type) {
	case PartyWithBIC:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf(":%s:", bicTag))
		if v.Account != "" {
			sb.WriteString(fmt.Sprintf("/%s\n", v.Account))
		}
		sb.WriteString(v.BIC + "\n")
		if v.Name != "" {
			sb.WriteString(v.Name + "\n")
		}
		return sb.String()
	case PartyNameAddress:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf(":%s:", nameAddrTag))
		if v.Account != "" {
			sb.WriteString(fmt.Sprintf("/%s\n", v.Account))
		}
		sb.WriteString(strings.Join(v.Name, "\n") + "\n")
		if len(v.Address) > 0 {
			sb.WriteString(strings.Join(v.Address, "\n") + "\n")
		}
		return sb.String()
	default:
		return ""
	}
}

func renderInstitution(field string, inst InstitutionRef) string {
	opt := "A"
	if !inst.IsBIC {
		opt = "D"
	}
	return fmt.Sprintf(":%s%s:%s\n", field, opt, inst.Value)
}

// FormatAmount renders a decimal amount in SWIFT canonical form (comma
// decimal separator, two fractional digits).
func FormatAmount(amount decimal.Decimal) string {
	return strings.ReplaceAll(amount.StringFixed(2), ".", ",")
}

// FormatDate renders a date in SWIFT YYMMDD form.
func FormatDate(date time.Time) string {
	return date.Format("060102")
}

// padBIC pads an 8-character BIC to the 12-character form block 1/2
// headers carry, as the teacher's generator did.
func padBIC(bic string) string {
	switch len(bic) {
	case 8:
		return bic + "XXXX"
	case 11:
		return bic + "X"
	default:
		return bic
	}
}
