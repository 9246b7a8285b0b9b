package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/packhub/internal/webhook/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("packhub/webhook")

func (s *Service) Dispatch(ctx context.Context, packName string, event domain.Event, data any, version string) (int, error) {
	ctx, span := tracer.Start(ctx, "webhook.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("pack", packName),
		attribute.String("event_type", string(event)),
	)

	matched, err := s.Subscribers(ctx, packName, event)
	if err != nil {
		s.log.Warn("load webhooks failed", zap.String("pack", packName), zap.Error(err))
		span.SetStatus(codes.Error, "load webhooks failed")
		return 0, nil
	}
	return s.fanOut(ctx, matched, packName, event, data, version, true)
}

// DispatchTo delivers to a pinned set of hooks. Attempts are logged but not
// stored, since the hooks may already be deleted.
func (s *Service) DispatchTo(ctx context.Context, hooks []domain.Webhook, packName string, event domain.Event, data any, version string) (int, error) {
	ctx, span := tracer.Start(ctx, "webhook.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("pack", packName),
		attribute.String("event_type", string(event)),
		attribute.Bool("pinned", true),
	)
	return s.fanOut(ctx, hooks, packName, event, data, version, false)
}

func (s *Service) Subscribers(ctx context.Context, packName string, event domain.Event) ([]domain.Webhook, error) {
	hooks, err := s.repo.ListActive(ctx, s.db, packName)
	if err != nil {
		return nil, err
	}
	matched := make([]domain.Webhook, 0, len(hooks))
	for _, hook := range hooks {
		if subscribed(hook, event) {
			matched = append(matched, hook)
		}
	}
	return matched, nil
}

func (s *Service) fanOut(ctx context.Context, hooks []domain.Webhook, packName string, event domain.Event, data any, version string, persist bool) (int, error) {
	if len(hooks) == 0 {
		return 0, nil
	}

	body, err := s.encode(packName, event, data, version)
	if err != nil {
		return 0, fmt.Errorf("encode webhook payload: %w", err)
	}

	var delivered atomic.Int64
	var g errgroup.Group
	for _, hook := range hooks {
		g.Go(func() error {
			if s.deliver(ctx, hook, event, body, persist) {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	count := int(delivered.Load())
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("webhooks", len(hooks)),
		attribute.Int("delivered", count),
	)
	s.log.Info("webhooks dispatched",
		zap.String("pack", packName),
		zap.String("event", string(event)),
		zap.Int("matched", len(hooks)),
		zap.Int("delivered", count),
	)
	return count, nil
}

// encode serializes the payload once in RFC 8785 canonical form so every
// subscriber receives and verifies identical bytes.
func (s *Service) encode(packName string, event domain.Event, data any, version string) ([]byte, error) {
	payload := domain.Payload{
		Event:     event,
		Pack:      packName,
		Timestamp: s.clock.Now().Format(time.RFC3339Nano),
		Data:      data,
	}
	if v := strings.TrimSpace(version); v != "" {
		payload.Version = &v
	}
	if payload.Data == nil {
		payload.Data = map[string]any{}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// deliver posts body to one subscriber and, when persist is set, records the
// attempt. It reports whether the subscriber answered with a 2xx status.
func (s *Service) deliver(ctx context.Context, hook domain.Webhook, event domain.Event, body []byte, persist bool) bool {
	record := &domain.Delivery{
		ID:         s.genID.Generate(),
		WebhookID:  hook.ID,
		DeliveryID: ulid.Make().String(),
		Event:      string(event),
		Payload:    body,
		CreatedAt:  s.clock.Now(),
	}

	start := time.Now()
	status, respBody, err := s.post(ctx, hook, record.DeliveryID, event, body)
	record.DurationMs = time.Since(start).Milliseconds()
	record.ResponseStatus = status
	record.ResponseBody = respBody
	if err != nil {
		record.Error = err.Error()
	}
	record.Success = err == nil && status >= http.StatusOK && status < http.StatusMultipleChoices

	if persist {
		// The attempt is stored even when the caller's context is already done.
		if insertErr := s.repo.InsertDelivery(context.WithoutCancel(ctx), s.db, record); insertErr != nil {
			s.log.Error("record webhook delivery failed",
				zap.String("webhook_id", hook.ID.String()),
				zap.String("delivery_id", record.DeliveryID),
				zap.Error(insertErr),
			)
		}
	} else {
		s.log.Info("webhook delivery attempted",
			zap.String("webhook_id", hook.ID.String()),
			zap.String("delivery_id", record.DeliveryID),
			zap.Bool("success", record.Success),
		)
	}

	s.metrics.RecordWebhookDelivery(ctx, string(event), record.Success)
	if !record.Success {
		s.log.Warn("webhook delivery failed",
			zap.String("webhook_id", hook.ID.String()),
			zap.String("delivery_id", record.DeliveryID),
			zap.Int("status", status),
			zap.Int64("duration_ms", record.DurationMs),
			zap.String("error", record.Error),
		)
	}
	return record.Success
}

func (s *Service) post(ctx context.Context, hook domain.Webhook, deliveryID string, event domain.Event, body []byte) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "packhub-webhooks")
	req.Header.Set(domain.HeaderEvent, string(event))
	req.Header.Set(domain.HeaderDelivery, deliveryID)
	if hook.Secret != nil && *hook.Secret != "" {
		req.Header.Set(domain.HeaderSignature, domain.Sign(*hook.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, domain.MaxResponseBodyBytes))
	if err != nil {
		return resp.StatusCode, "", err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, strings.ToValidUTF8(string(raw), ""), nil
}
