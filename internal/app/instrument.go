package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medscriba/medscriba/internal/observe"
	"github.com/medscriba/medscriba/pkg/quality"
)

// instrumentedStore decorates a [quality.Store] with counter and histogram
// recording. Only successful operations are counted; failures surface through
// the job error metric instead.
type instrumentedStore struct {
	quality.Store
	metrics *observe.Metrics
}

func instrumentStore(s quality.Store, m *observe.Metrics) quality.Store {
	return &instrumentedStore{Store: s, metrics: m}
}

func (s *instrumentedStore) InsertTranscription(ctx context.Context, t *quality.Transcription) error {
	err := s.Store.InsertTranscription(ctx, t)
	if err == nil {
		s.metrics.RecordEventIngested(ctx, "transcription")
	}
	return err
}

func (s *instrumentedStore) InsertTemplateUsage(ctx context.Context, u *quality.TemplateUsage) error {
	err := s.Store.InsertTemplateUsage(ctx, u)
	if err == nil {
		s.metrics.RecordEventIngested(ctx, "usage")
	}
	return err
}

func (s *instrumentedStore) InsertExtractedFields(ctx context.Context, usageID int64, fields []quality.ExtractedField) error {
	err := s.Store.InsertExtractedFields(ctx, usageID, fields)
	if err == nil {
		for range fields {
			s.metrics.RecordEventIngested(ctx, "field")
		}
	}
	return err
}

func (s *instrumentedStore) LogPerformance(ctx context.Context, e *quality.PerformanceLogEntry) error {
	err := s.Store.LogPerformance(ctx, e)
	if err == nil {
		s.metrics.RecordEventIngested(ctx, "perf_log")
	}
	return err
}

func (s *instrumentedStore) RecordCorrection(ctx context.Context, c quality.Correction) (quality.Correction, error) {
	rec, err := s.Store.RecordCorrection(ctx, c)
	if err == nil {
		s.metrics.CorrectionsRecorded.Add(ctx, 1)
	}
	return rec, err
}

func (s *instrumentedStore) OpenRealtimeSession(ctx context.Context, userID string) (quality.RealtimeSession, error) {
	session, err := s.Store.OpenRealtimeSession(ctx, userID)
	if err == nil {
		s.metrics.OpenSessions.Add(ctx, 1)
	}
	return session, err
}

func (s *instrumentedStore) CloseRealtimeSession(ctx context.Context, sessionID uuid.UUID, finalTranscription string) error {
	err := s.Store.CloseRealtimeSession(ctx, sessionID, finalTranscription)
	if err == nil {
		s.metrics.OpenSessions.Add(ctx, -1)
	}
	return err
}

func (s *instrumentedStore) UserPerformance(ctx context.Context, userID string, windowDays int) ([]quality.PerformanceComparison, error) {
	start := time.Now()
	rows, err := s.Store.UserPerformance(ctx, userID, windowDays)
	if err == nil {
		s.metrics.ReportDuration.Record(ctx, time.Since(start).Seconds())
	}
	return rows, err
}
