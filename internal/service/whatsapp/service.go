package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/models"
	client "github.com/mamadbah2/moulinette/pkg/clients/whatsapp"
)

// maxListedIssues caps how many skipped rows are spelled out in a message.
const maxListedIssues = 3

// Notifier announces finished reconciliation runs.
type Notifier interface {
	NotifyRun(ctx context.Context, session models.Session, summary models.RunSummary) error
}

// MetaWhatsAppService sends run notifications through the WhatsApp Cloud API.
type MetaWhatsAppService struct {
	client    client.Client
	recipient string
	logger    *zap.Logger
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(c client.Client, recipient string, logger *zap.Logger) *MetaWhatsAppService {
	svc := &MetaWhatsAppService{
		client:    c,
		recipient: recipient,
		logger:    logger,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// NotifyRun sends a short run report to the configured recipient.
func (s *MetaWhatsAppService) NotifyRun(ctx context.Context, session models.Session, summary models.RunSummary) error {
	id, err := s.client.SendText(ctx, s.recipient, FormatRunMessage(session, summary))
	if err != nil {
		return fmt.Errorf("notify run of session %s: %w", session.ID, err)
	}

	s.logger.Info("run notification sent",
		zap.String("session_id", session.ID),
		zap.String("message_id", id))
	return nil
}

// FormatRunMessage renders the run report sent to operators.
func FormatRunMessage(session models.Session, summary models.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Inventaire %s (%s) corrigé.\n", session.ID, session.OriginalFilename)
	fmt.Fprintf(&b, "Stratégie: %s\n", summary.Strategy)
	fmt.Fprintf(&b, "Écart total: %s\n", summary.TotalDiscrepancy.String())
	fmt.Fprintf(&b, "Lignes ajustées: %d\n", summary.AdjustedItems)
	fmt.Fprintf(&b, "Lignes LOTECART: %d\n", summary.LotecartLines)
	fmt.Fprintf(&b, "Lignes écrites: %d", summary.LinesWritten)

	if n := len(summary.Anomalies); n > 0 {
		fmt.Fprintf(&b, "\nÉcarts non répartis: %d article(s)", n)
	}

	if n := len(summary.Issues); n > 0 {
		fmt.Fprintf(&b, "\nLignes ignorées: %d", n)
		for i, issue := range summary.Issues {
			if i == maxListedIssues {
				fmt.Fprintf(&b, "\n- ... et %d autre(s)", n-maxListedIssues)
				break
			}
			fmt.Fprintf(&b, "\n- %s ligne %d: %s", issue.Stage, issue.Line, issue.Reason)
		}
	}

	return b.String()
}
