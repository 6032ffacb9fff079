// Package generator implements the synthetic MT103 traffic generator
// (C9): a cadence/batchSize-driven producer of valid and deliberately
// invalid messages, enqueued onto the input queue to exercise the
// pipeline end to end.
package generator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/deltran/swift-processor/internal/queue"
	"github.com/deltran/swift-processor/internal/swift"
)

// Variant names the invalid-message modes §4.9 enumerates.
type Variant string

const (
	VariantValid                      Variant = "Valid"
	MissingTransactionReference       Variant = "MissingTransactionReference"
	InvalidAmount                     Variant = "InvalidAmount"
	MissingCurrency                   Variant = "MissingCurrency"
	InvalidBankCode                   Variant = "InvalidBankCode"
	MissingBeneficiary                Variant = "MissingBeneficiary"
)

var invalidVariants = []Variant{
	MissingTransactionReference,
	InvalidAmount,
	MissingCurrency,
	InvalidBankCode,
	MissingBeneficiary,
}

// Config carries the test-mode settings from §6's configuration
// surface.
type Config struct {
	Enabled                 bool
	GenerationInterval      time.Duration
	ValidMessagePercentage  int
	BatchSize               int
}

// Generator produces synthetic MT103 traffic on its own cadence,
// cooperative with the root cancellation signal (§5).
type Generator struct {
	cfg    Config
	q      queue.Backend
	logger *zap.Logger

	senderBIC   string
	receiverBIC string
}

// New builds a Generator that enqueues onto q's input queue.
func New(q queue.Backend, logger *zap.Logger, cfg Config) *Generator {
	return &Generator{
		cfg:         cfg,
		q:           q,
		logger:      logger,
		senderBIC:   "DELTGB2L",
		receiverBIC: "DELTUS33",
	}
}

// Run produces batches on GenerationInterval until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	if !g.cfg.Enabled {
		return nil
	}
	ticker := time.NewTicker(g.cfg.GenerationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.produceBatch(ctx)
		}
	}
}

func (g *Generator) produceBatch(ctx context.Context) {
	for i := 0; i < g.cfg.BatchSize; i++ {
		payload, variant, err := g.generateOne()
		if err != nil {
			g.logger.Error("failed to generate synthetic message", zap.Error(err))
			continue
		}
		if err := g.q.Send(ctx, queue.Input, []byte(payload)); err != nil {
			g.logger.Error("failed to enqueue synthetic message",
				zap.String("variant", string(variant)), zap.Error(err))
			continue
		}
		g.logger.Debug("generated synthetic message", zap.String("variant", string(variant)))
	}
}

// generateOne produces one rendered MT103 payload, valid with
// probability ValidMessagePercentage/100, otherwise one of the five
// invalid variants chosen uniformly (§4.9).
func (g *Generator) generateOne() (string, Variant, error) {
	ref, err := swift.GenerateReference("GEN")
	if err != nil {
		return "", "", err
	}

	msg := &swift.MT103Message{
		TransactionReference: ref,
		BankOperationCode:    "CRED",
		ValueDate:            time.Now().UTC(),
		Currency:             "USD",
		Amount:               decimal.RequireFromString("1000.00"),
		OrderingCustomer: swift.PartyWithBIC{
			Account: "12345678",
			BIC:     g.senderBIC,
			Name:    "ALICE EXPORTER",
		},
		BeneficiaryCustomer: swift.PartyWithBIC{
			Account: "87654321",
			BIC:     g.receiverBIC,
			Name:    "BOB IMPORTER",
		},
		ChargeDetails: &swift.ChargeDetails{Bearer: "SHA"},
	}

	variant := VariantValid
	if !g.rollValid() {
		variant = pickInvalidVariant()
		applyVariant(msg, variant)
	}

	rendered, err := swift.RenderMT103(g.senderBIC, g.receiverBIC, msg)
	if err != nil {
		// A variant that violates render's own mandatory-field check
		// (e.g. MissingBeneficiary) still needs to reach the wire so the
		// pipeline can observe and reject it; fall back to a hand-built
		// minimal frame (see renderDegraded).
		rendered = renderDegraded(g.senderBIC, g.receiverBIC, msg)
	}
	return rendered, variant, nil
}

func (g *Generator) rollValid() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return true
	}
	return int(n.Int64()) < g.cfg.ValidMessagePercentage
}

func pickInvalidVariant() Variant {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(invalidVariants))))
	if err != nil {
		return invalidVariants[0]
	}
	return invalidVariants[n.Int64()]
}

func applyVariant(msg *swift.MT103Message, variant Variant) {
	switch variant {
	case MissingTransactionReference:
		msg.TransactionReference = ""
	case InvalidAmount:
		msg.Amount = decimal.RequireFromString("-50.00")
	case MissingCurrency:
		msg.Currency = ""
	case InvalidBankCode:
		if bic, ok := msg.OrderingCustomer.(swift.PartyWithBIC); ok {
			bic.BIC = "XX"
			msg.OrderingCustomer = bic
		}
	case MissingBeneficiary:
		msg.BeneficiaryCustomer = nil
	}
}

// renderDegraded builds a minimal block-1/2/4 frame without
// RenderMT103's mandatory-field guard, so intentionally-broken synthetic
// messages still reach the queue instead of being silently dropped.
// Fields 20, 23B and 32A come from msg; 50K and 59 are fixed placeholder
// parties (59 is left out when msg has no beneficiary), and 71A is not
// emitted.
func renderDegraded(senderBIC, receiverBIC string, msg *swift.MT103Message) string {
	beneficiary := ":59:/87654321\nBOB IMPORTER\n"
	if msg.BeneficiaryCustomer == nil {
		beneficiary = ""
	}
	currency := msg.Currency
	amount := swift.FormatAmount(msg.Amount)

	return fmt.Sprintf(
		"{1:F01%s0000000000}{2:I103%sN}{4:\n:20:%s\n:23B:%s\n:32A:%s%s%s\n:50K:/12345678\nALICE EXPORTER\n%s-}",
		padBICExported(senderBIC), padBICExported(receiverBIC),
		msg.TransactionReference, msg.BankOperationCode,
		swift.FormatDate(msg.ValueDate), currency, amount,
		beneficiary,
	)
}

func padBICExported(bic string) string {
	switch len(bic) {
	case 8:
		return bic + "XXXX"
	case 11:
		return bic + "X"
	default:
		return bic
	}
}
