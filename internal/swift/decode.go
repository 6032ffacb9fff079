package swift

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DecodingErrorKind enumerates why mapping framed triples to a typed
// message failed.
type DecodingErrorKind string

const (
	MissingTag        DecodingErrorKind = "MissingTag"
	UnsupportedOption DecodingErrorKind = "UnsupportedOption"
	MalformedField    DecodingErrorKind = "MalformedField"
)

// DecodingError is fatal for the message it was raised against.
type DecodingError struct {
	Kind   DecodingErrorKind
	Tag    string
	Detail string
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("swift: decoding error (%s) on tag %s: %s", e.Kind, e.Tag, e.Detail)
}

// fieldNumber strips a trailing option letter, if any, from a tag
// ("50K" -> "50", "32A" -> "32", "20" -> "20").
func fieldNumber(tag string) string {
	if n := len(tag); n > 0 {
		last := tag[n-1]
		if last >= 'A' && last <= 'Z' {
			return tag[:n-1]
		}
	}
	return tag
}

// allowedOptions lists, per field number, the option letters the decoder
// understands. A tag whose field number appears here but whose option is
// not listed is an UnsupportedOption error; a tag whose field number does
// not appear here at all is an unknown field and is passed through
// untouched (diagnostics only), per §4.1/§4.2.
var allowedOptions = map[string]map[string]bool{
	"20": {"": true},
	"23": {"B": true},
	"32": {"A": true},
	"33": {"B": true},
	"50": {"A": true, "K": true},
	"52": {"A": true, "D": true},
	"53": {"A": true, "B": true, "D": true},
	"54": {"A": true, "B": true, "D": true},
	"56": {"A": true, "C": true, "D": true},
	"57": {"A": true, "B": true, "C": true, "D": true},
	"59": {"": true, "A": true},
	"70": {"": true},
	"71": {"A": true, "F": true, "G": true},
	"72": {"": true},
}

func option(tag string) string {
	n := fieldNumber(tag)
	if len(tag) > len(n) {
		return tag[len(n):]
	}
	return ""
}

// DecodeMT103 maps a frame's triples onto a typed MT103Message per the
// table in §4.2.
func DecodeMT103(frame *Frame) (*MT103Message, error) {
	msg := &MT103Message{Headers: frame.Headers}

	var haveOrdering, haveBeneficiary bool

	for _, f := range frame.Fields {
		fn := fieldNumber(f.Tag)
		opts, known := allowedOptions[fn]
		if !known {
			continue // unknown field, diagnostics only
		}
		opt := option(f.Tag)
		if !opts[opt] {
			return nil, &DecodingError{Kind: UnsupportedOption, Tag: f.Tag, Detail: "option not supported for MT103"}
		}

		switch f.Tag {
		case "20":
			msg.TransactionReference = strings.TrimSpace(f.Value)
		case "23B":
			v := strings.ToUpper(strings.TrimSpace(f.Value))
			if len(v) != 4 {
				return nil, &DecodingError{Kind: MalformedField, Tag: f.Tag, Detail: "bank operation code must be 4 characters"}
			}
			msg.BankOperationCode = v
		case "32A":
			date, currency, amount, err := decodeValueDateCurrencyAmount(f.Value)
			if err != nil {
				return nil, &DecodingError{Kind: MalformedField, Tag: f.Tag, Detail: err.Error()}
			}
			msg.ValueDate, msg.Currency, msg.Amount = date, currency, amount
		case "33B":
			currency, amount, err := decodeCurrencyAmount(f.Value)
			if err != nil {
				return nil, &DecodingError{Kind: MalformedField, Tag: f.Tag, Detail: err.Error()}
			}
			msg.HasOriginalAmount = true
			msg.OriginalCurrency, msg.OriginalAmount = currency, amount
		case "50A":
			msg.OrderingCustomer = decodePartyWithBIC(f.Value)
			haveOrdering = true
		case "50K":
			msg.OrderingCustomer = decodePartyNameAddress(f.Value)
			haveOrdering = true
		case "52A", "52D":
			msg.OrderingInstitution = decodeInstitution(f.Tag, f.Value)
		case "53A", "53B", "53D":
			msg.SendersCorrespondent = decodeInstitution(f.Tag, f.Value)
		case "54A", "54B", "54D":
			msg.ReceiversCorrespondent = decodeInstitution(f.Tag, f.Value)
		case "56A", "56C", "56D":
			msg.IntermediaryInstitution = decodeInstitution(f.Tag, f.Value)
		case "57A", "57B", "57C", "57D":
			msg.AccountWithInstitution = decodeInstitution(f.Tag, f.Value)
		case "59":
			msg.BeneficiaryCustomer = decodePartyNameAddress(f.Value)
			haveBeneficiary = true
		case "59A":
			msg.BeneficiaryCustomer = decodePartyWithBIC(f.Value)
			haveBeneficiary = true
		case "70":
			msg.RemittanceInformation = splitLines(f.Value)
		case "71A":
			bearer := strings.ToUpper(strings.TrimSpace(f.Value))
			if msg.ChargeDetails == nil {
				msg.ChargeDetails = &ChargeDetails{}
			}
			msg.ChargeDetails.Bearer = bearer
		case "71F":
			msg.SendersCharges = strings.TrimSpace(f.Value)
		case "71G":
			msg.ReceiversCharges = strings.TrimSpace(f.Value)
		case "72":
			msg.SenderToReceiverInfo = splitLines(f.Value)
		}
	}

	switch {
	case msg.TransactionReference == "":
		return nil, &DecodingError{Kind: MissingTag, Tag: "20", Detail: "transaction reference"}
	case msg.BankOperationCode == "":
		return nil, &DecodingError{Kind: MissingTag, Tag: "23B", Detail: "bank operation code"}
	case msg.ValueDate.IsZero() || msg.Currency == "":
		return nil, &DecodingError{Kind: MissingTag, Tag: "32A", Detail: "value date/currency/amount"}
	case !haveOrdering:
		return nil, &DecodingError{Kind: MissingTag, Tag: "50", Detail: "ordering customer"}
	case !haveBeneficiary:
		return nil, &DecodingError{Kind: MissingTag, Tag: "59", Detail: "beneficiary customer"}
	}

	return msg, nil
}

// DecodeMT202 maps a frame's triples onto the simpler MT202 variant.
func DecodeMT202(frame *Frame) (*MT202Message, error) {
	msg := &MT202Message{Headers: frame.Headers}
	var haveOrderingInst, haveBeneficiaryInst bool

	for _, f := range frame.Fields {
		switch f.Tag {
		case "20":
			msg.TransactionReference = strings.TrimSpace(f.Value)
		case "21":
			msg.RelatedReference = strings.TrimSpace(f.Value)
		case "32A":
			date, currency, amount, err := decodeValueDateCurrencyAmount(f.Value)
			if err != nil {
				return nil, &DecodingError{Kind: MalformedField, Tag: f.Tag, Detail: err.Error()}
			}
			msg.ValueDate, msg.Currency, msg.Amount = date, currency, amount
		case "52A", "52D":
			msg.OrderingInstitution = decodeInstitution(f.Tag, f.Value)
			haveOrderingInst = true
		case "53A", "53B", "53D":
			msg.SendersCorrespondent = decodeInstitution(f.Tag, f.Value)
		case "54A", "54B", "54D":
			msg.ReceiversCorrespondent = decodeInstitution(f.Tag, f.Value)
		case "56A", "56C", "56D":
			msg.IntermediaryInstitution = decodeInstitution(f.Tag, f.Value)
		case "57A", "57B", "57C", "57D":
			msg.AccountWithInstitution = decodeInstitution(f.Tag, f.Value)
		case "58A", "58D":
			msg.BeneficiaryInstitution = decodeInstitution(f.Tag, f.Value)
			haveBeneficiaryInst = true
		case "72":
			msg.SenderToReceiverInfo = splitLines(f.Value)
		}
	}

	switch {
	case msg.TransactionReference == "":
		return nil, &DecodingError{Kind: MissingTag, Tag: "20", Detail: "transaction reference"}
	case msg.ValueDate.IsZero() || msg.Currency == "":
		return nil, &DecodingError{Kind: MissingTag, Tag: "32A", Detail: "value date/currency/amount"}
	case !haveOrderingInst:
		return nil, &DecodingError{Kind: MissingTag, Tag: "52", Detail: "ordering institution"}
	case !haveBeneficiaryInst:
		return nil, &DecodingError{Kind: MissingTag, Tag: "58", Detail: "beneficiary institution"}
	}

	return msg, nil
}

// Decode dispatches a frame to the right typed decoder by message type
// string: a lookup, not virtual dispatch, per §9.
func Decode(frame *Frame) (SwiftMessage, error) {
	switch MessageType(frame.MessageType) {
	case MT103:
		return DecodeMT103(frame)
	case MT202:
		return DecodeMT202(frame)
	default:
		return nil, &DecodingError{Kind: MalformedField, Tag: "2", Detail: fmt.Sprintf("unsupported message type %q", frame.MessageType)}
	}
}

// decodeValueDateCurrencyAmount decodes field 32A: YYMMDD + CCY + amount.
// The two-digit year is pinned to [2000..2099] (§9 design note iii).
func decodeValueDateCurrencyAmount(value string) (time.Time, string, decimal.Decimal, error) {
	if len(value) < 9 {
		return time.Time{}, "", decimal.Decimal{}, fmt.Errorf("value too short for YYMMDDCCCamount")
	}
	date, err := decodeYYMMDD(value[0:6])
	if err != nil {
		return time.Time{}, "", decimal.Decimal{}, err
	}
	currency := strings.ToUpper(value[6:9])
	amount, err := decodeSwiftAmount(value[9:])
	if err != nil {
		return time.Time{}, "", decimal.Decimal{}, err
	}
	return date, currency, amount, nil
}

func decodeCurrencyAmount(value string) (string, decimal.Decimal, error) {
	if len(value) < 4 {
		return "", decimal.Decimal{}, fmt.Errorf("value too short for CCCamount")
	}
	currency := strings.ToUpper(value[0:3])
	amount, err := decodeSwiftAmount(value[3:])
	if err != nil {
		return "", decimal.Decimal{}, err
	}
	return currency, amount, nil
}

func decodeYYMMDD(s string) (time.Time, error) {
	if len(s) != 6 {
		return time.Time{}, fmt.Errorf("date must be 6 digits (YYMMDD)")
	}
	yy, err := strconv.Atoi(s[0:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid year digits: %w", err)
	}
	mm, err := strconv.Atoi(s[2:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month digits: %w", err)
	}
	dd, err := strconv.Atoi(s[4:6])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day digits: %w", err)
	}
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}, fmt.Errorf("date out of range: %s", s)
	}
	year := 2000 + yy
	date := time.Date(year, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	if date.Day() != dd || int(date.Month()) != mm {
		return time.Time{}, fmt.Errorf("invalid calendar date: %s", s)
	}
	return date, nil
}

// decodeSwiftAmount requires the SWIFT canonical decimal separator "," and
// rejects thousands separators or any other punctuation.
func decodeSwiftAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	for i, r := range s {
		if r >= '0' && r <= '9' {
			continue
		}
		if r == ',' && !strings.Contains(s[:i], ",") {
			continue
		}
		return decimal.Decimal{}, fmt.Errorf("amount contains disallowed character %q", r)
	}
	normalized := strings.Replace(s, ",", ".", 1)
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}

func decodePartyWithBIC(value string) PartyWithBIC {
	lines := strings.Split(value, "\n")
	p := PartyWithBIC{}
	idx := 0
	if idx < len(lines) && strings.HasPrefix(lines[idx], "/") {
		p.Account = strings.TrimPrefix(lines[idx], "/")
		idx++
	}
	if idx < len(lines) {
		p.BIC = strings.TrimSpace(lines[idx])
		idx++
	}
	if idx < len(lines) {
		p.Name = strings.TrimSpace(strings.Join(lines[idx:], " "))
	}
	return p
}

func decodePartyNameAddress(value string) PartyNameAddress {
	lines := strings.Split(value, "\n")
	p := PartyNameAddress{}
	idx := 0
	if idx < len(lines) && strings.HasPrefix(lines[idx], "/") {
		p.Account = strings.TrimPrefix(lines[idx], "/")
		idx++
	}
	if idx < len(lines) {
		p.Name = []string{strings.TrimSpace(lines[idx])}
		idx++
	}
	for ; idx < len(lines) && len(p.Address) < 3; idx++ {
		p.Address = append(p.Address, strings.TrimSpace(lines[idx]))
	}
	return p
}

// decodeInstitution stores the raw value alongside whether the SWIFT
// option letter denotes a BIC ("A") or an account/name form (B/C/D).
func decodeInstitution(tag, value string) InstitutionRef {
	opt := option(tag)
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "/") {
		v = strings.TrimPrefix(v, "/")
	}
	return InstitutionRef{Value: v, IsBIC: opt == "A"}
}

func splitLines(value string) []string {
	if value == "" {
		return nil
	}
	lines := strings.Split(value, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}
