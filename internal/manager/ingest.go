package manager

import (
	"context"
	"errors"
	"math"

	"cmm/internal/middleware"
	"cmm/internal/models"
	"cmm/internal/store"
	"cmm/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const unknownServerMessage = "Unknown server_id (register server first)"

// IngestResult reports what an accepted sample produced.
type IngestResult struct {
	Alerts []models.Alert
}

// IngestInput is a sample as posted by an agent. The readings are pointers so
// a missing field is told apart from a zero reading.
type IngestInput struct {
	ServerID      string           `json:"server_id" validate:"required,max=128"`
	Timestamp     models.Timestamp `json:"timestamp"`
	CPUPercent    *float64         `json:"cpu_percent" validate:"required"`
	RAMPercent    *float64         `json:"ram_percent" validate:"required"`
	DiskPercent   *float64         `json:"disk_percent" validate:"required"`
	UptimeSeconds *int64           `json:"uptime_seconds" validate:"required,min=0"`
}

// validate checks presence and range and returns the sample to store.
func (in *IngestInput) validate() (models.MetricSample, error) {
	in.ServerID = middleware.SanitizeString(in.ServerID)
	if err := middleware.ValidateStruct(in); err != nil {
		return models.MetricSample{}, err
	}
	if in.Timestamp.IsZero() {
		return models.MetricSample{}, models.NewError(models.ErrValidation, "timestamp is required")
	}
	for _, v := range []float64{*in.CPUPercent, *in.RAMPercent, *in.DiskPercent} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.MetricSample{}, models.NewError(models.ErrValidation, "metric values must be finite numbers")
		}
	}
	return models.MetricSample{
		ServerID:      in.ServerID,
		Timestamp:     in.Timestamp,
		CPUPercent:    *in.CPUPercent,
		RAMPercent:    *in.RAMPercent,
		DiskPercent:   *in.DiskPercent,
		UptimeSeconds: *in.UptimeSeconds,
	}, nil
}

// Ingest stores one sample and the alerts it triggers in a single
// transaction. A sample for an unregistered server writes nothing.
func (m *Manager) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	ctx, span := m.tracer.Start(ctx, "manager.Ingest")
	defer span.End()

	sample, err := in.validate()
	if err != nil {
		telemetry.IngestTotal.WithLabelValues("invalid").Inc()
		span.SetStatus(codes.Error, "invalid sample")
		return nil, err
	}
	span.SetAttributes(attribute.String("cmm.server_id", sample.ServerID))

	var raised []models.Alert
	err = m.db.WithTx(ctx, func(r *store.Repository) error {
		srv, err := r.ServerByServerID(ctx, sample.ServerID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.NewError(models.ErrNotFound, unknownServerMessage)
			}
			return err
		}
		metric := &models.Metric{
			ServerFK:      srv.ID,
			ServerID:      srv.ServerID,
			Timestamp:     sample.Timestamp.UTC(),
			CPUPercent:    sample.CPUPercent,
			RAMPercent:    sample.RAMPercent,
			DiskPercent:   sample.DiskPercent,
			UptimeSeconds: sample.UptimeSeconds,
		}
		if err := r.InsertMetric(ctx, metric); err != nil {
			return err
		}
		raised = m.engine.Evaluate(sample, m.now())
		for i := range raised {
			if err := r.InsertAlert(ctx, &raised[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			telemetry.IngestTotal.WithLabelValues("unknown_server").Inc()
			m.log.Info("sample for unknown server", zap.String("server_id", sample.ServerID))
		} else {
			telemetry.IngestTotal.WithLabelValues("error").Inc()
			m.log.Error("ingest failed", zap.String("server_id", sample.ServerID), zap.Error(err))
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, models.Message(err))
		return nil, err
	}

	telemetry.IngestTotal.WithLabelValues("accepted").Inc()
	for _, a := range raised {
		telemetry.AlertsRaised.WithLabelValues(string(a.Level)).Inc()
		m.log.Warn("alert raised",
			zap.String("server_id", a.ServerID),
			zap.String("level", string(a.Level)),
			zap.String("message", a.Message))
	}
	span.SetAttributes(attribute.Int("cmm.alerts", len(raised)))
	return &IngestResult{Alerts: raised}, nil
}
