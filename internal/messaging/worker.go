package messaging

import (
	"context"
	"errors"
	"log/slog"

	"revenda/internal/types"
)

// DispatchStore is the subset of the dispatch repository the worker needs.
type DispatchStore interface {
	GetByID(ctx context.Context, dispatchID string) (*types.DispatchRecord, error)
	RecordAttempt(ctx context.Context, dispatchID string) error
	MarkSent(ctx context.Context, dispatchID, providerMsgID string) error
	MarkFailed(ctx context.Context, dispatchID, reason string) error
	MarkSkipped(ctx context.Context, dispatchID, reason string) error
}

// ClientStore loads the client snapshot for rendering.
type ClientStore interface {
	GetByID(ctx context.Context, orgID, clientID string) (*types.Client, error)
}

// TemplateStore loads the message template.
type TemplateStore interface {
	GetByID(ctx context.Context, orgID, templateID string) (*types.MessageTemplate, error)
}

// Deliverer sends a rendered message. Implemented by WhatsAppGateway.
type Deliverer interface {
	Deliver(ctx context.Context, phone, body string) (*types.DeliveryResult, error)
}

// Worker consumes dispatch messages from the queue, renders the template
// against the current client snapshot, and delivers through the gateway.
//
// Process is idempotent: a redelivered message whose dispatch is already
// sent is acknowledged without a second delivery.
type Worker struct {
	dispatches DispatchStore
	clients    ClientStore
	templates  TemplateStore
	gateway    Deliverer
	clock      types.Clock
	logger     *slog.Logger
}

// NewWorker wires a Worker from its stores and the delivery gateway.
func NewWorker(
	dispatches DispatchStore,
	clients ClientStore,
	templates TemplateStore,
	gateway Deliverer,
	clock types.Clock,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Worker{
		dispatches: dispatches,
		clients:    clients,
		templates:  templates,
		gateway:    gateway,
		clock:      clock,
		logger:     logger,
	}
}

// Process handles one dispatch message. A returned error means delivery
// should be retried (the caller reports the SQS record as failed so the
// queue redelivers); a nil return acknowledges the message.
func (w *Worker) Process(ctx context.Context, msg types.DispatchMessage) error {
	logger := w.logger.With(
		slog.String("dispatch_id", msg.DispatchID),
		slog.String("client_id", msg.ClientID),
		slog.String("rule_id", msg.RuleID),
		slog.String("trace_id", msg.TraceID),
	)

	dispatch, err := w.dispatches.GetByID(ctx, msg.DispatchID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundDispatch {
			// A dispatch can only go missing if the run was rolled back;
			// nothing to deliver, ack the message.
			logger.Warn("dispatch record not found; dropping message")
			return nil
		}
		return err
	}

	if dispatch.Status == types.DispatchSent {
		logger.Info("dispatch already sent; duplicate delivery ignored")
		return nil
	}
	if dispatch.Status == types.DispatchSkipped {
		logger.Info("dispatch already skipped; duplicate delivery ignored")
		return nil
	}

	client, err := w.clients.GetByID(ctx, msg.OrganizationID, msg.ClientID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundClient {
			// Client deleted between run and delivery.
			logger.Info("client no longer exists; skipping dispatch")
			return w.dispatches.MarkSkipped(ctx, msg.DispatchID, "client deleted")
		}
		return err
	}

	if client.Phone == "" {
		logger.Info("client has no phone number; skipping dispatch")
		return w.dispatches.MarkSkipped(ctx, msg.DispatchID, "client has no phone number")
	}

	template, err := w.templates.GetByID(ctx, msg.OrganizationID, msg.TemplateID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundTemplate {
			logger.Warn("message template deleted; skipping dispatch")
			return w.dispatches.MarkSkipped(ctx, msg.DispatchID, "message template deleted")
		}
		return err
	}

	if err := w.dispatches.RecordAttempt(ctx, msg.DispatchID); err != nil {
		return err
	}

	rendered := RenderTemplate(template.Body, client, w.clock.Now())
	if len(rendered.MissingVars) > 0 {
		logger.Warn("template variables missing from client snapshot",
			slog.String("template_id", template.ID),
			slog.Any("missing_vars", rendered.MissingVars),
		)
	}

	result, err := w.gateway.Deliver(ctx, client.Phone, rendered.Body)
	if err != nil {
		// Upstream/transient failure: record it, then surface the error so
		// the queue redelivers with backoff.
		if markErr := w.dispatches.MarkFailed(ctx, msg.DispatchID, err.Error()); markErr != nil {
			logger.Error("failed to record delivery failure", slog.Any("error", markErr))
		}
		return err
	}

	if result.Status != "sent" {
		// Permanent gateway rejection (bad number, blocked recipient).
		logger.Warn("gateway rejected message",
			slog.String("reason", result.FailureReason),
		)
		return w.dispatches.MarkFailed(ctx, msg.DispatchID, result.FailureReason)
	}

	if err := w.dispatches.MarkSent(ctx, msg.DispatchID, result.ProviderMessageID); err != nil {
		return err
	}

	logger.Info("message delivered",
		slog.String("provider_message_id", result.ProviderMessageID),
	)
	return nil
}
