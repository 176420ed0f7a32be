package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medscriba/medscriba/pkg/quality"
)

// InsertTranscription implements [quality.EventStore]. It validates t, stores
// it, and fills in the generated ID and timestamps.
func (s *Store) InsertTranscription(ctx context.Context, t *quality.Transcription) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("event store: insert transcription: %w", err)
	}

	const q = `
		INSERT INTO transcriptions
		    (audio_duration, processing_time, word_count, confidence_avg, text,
		     patient_ref, procedure_ref, surgeon_ref, model_name, model_device)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := s.pool.QueryRow(ctx, q,
		t.AudioDuration,
		t.ProcessingTime,
		t.WordCount,
		t.ConfidenceAvg,
		t.Text,
		t.PatientRef,
		t.ProcedureRef,
		t.SurgeonRef,
		t.ModelName,
		t.ModelDevice,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("event store: insert transcription: %w", err)
	}
	return nil
}

// InsertTemplateUsage implements [quality.EventStore]. The usage's
// UserCorrections always starts at zero; only the correction propagator may
// move it afterwards.
func (s *Store) InsertTemplateUsage(ctx context.Context, u *quality.TemplateUsage) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("event store: insert template usage: %w", err)
	}

	const q = `
		INSERT INTO template_usages
		    (template_key, template_source, processing_time, avg_confidence,
		     low_confidence_count, field_count, transcription_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, user_corrections`

	err := s.pool.QueryRow(ctx, q,
		u.TemplateKey,
		string(u.TemplateSource),
		u.ProcessingTime,
		u.AvgConfidence,
		u.LowConfidenceCount,
		u.FieldCount,
		u.TranscriptionID,
		u.UserID,
	).Scan(&u.ID, &u.CreatedAt, &u.UserCorrections)
	if err != nil {
		return fmt.Errorf("event store: insert template usage: %w", err)
	}
	return nil
}

// InsertExtractedFields implements [quality.EventStore]. All fields are
// validated up front and inserted in a single batch round trip.
func (s *Store) InsertExtractedFields(ctx context.Context, usageID int64, fields []quality.ExtractedField) error {
	if len(fields) == 0 {
		return nil
	}
	for i := range fields {
		if err := fields[i].Validate(); err != nil {
			return fmt.Errorf("event store: insert extracted field %q: %w", fields[i].FieldName, err)
		}
	}

	const q = `
		INSERT INTO extracted_fields (usage_id, field_name, value, confidence, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	batch := &pgx.Batch{}
	for i := range fields {
		f := &fields[i]
		batch.Queue(q, usageID, f.FieldName, f.Value, f.Confidence, string(f.Source))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range fields {
		if err := results.QueryRow().Scan(&fields[i].ID); err != nil {
			return fmt.Errorf("event store: insert extracted field %q: %w", fields[i].FieldName, err)
		}
		fields[i].UsageID = usageID
	}
	return nil
}

// LogPerformance implements [quality.EventStore].
func (s *Store) LogPerformance(ctx context.Context, e *quality.PerformanceLogEntry) error {
	const q = `
		INSERT INTO performance_log
		    (metric_type, processing_time, success, error_message, gpu_memory_used, gpu_temperature)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q,
		e.MetricType,
		e.ProcessingTime,
		e.Success,
		e.ErrorMessage,
		e.GPUMemoryUsed,
		e.GPUTemperature,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("event store: log performance: %w", err)
	}
	return nil
}

// OpenRealtimeSession implements [quality.EventStore].
func (s *Store) OpenRealtimeSession(ctx context.Context, userID string) (quality.RealtimeSession, error) {
	session := quality.RealtimeSession{
		SessionID: uuid.New(),
		UserID:    userID,
	}

	const q = `
		INSERT INTO realtime_sessions (session_id, user_id)
		VALUES ($1, $2)
		RETURNING started_at`

	if err := s.pool.QueryRow(ctx, q, session.SessionID, userID).Scan(&session.StartedAt); err != nil {
		return quality.RealtimeSession{}, fmt.Errorf("event store: open realtime session: %w", err)
	}
	return session, nil
}

// AppendSessionChunk implements [quality.EventStore]. The running confidence
// average is folded in from the pre-update chunk count; all SET expressions
// see the old row values, so the fold and the counter bump stay consistent.
func (s *Store) AppendSessionChunk(ctx context.Context, sessionID uuid.UUID, duration, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("event store: append session chunk: confidence %.3f is out of range [0, 1]", confidence)
	}
	if duration < 0 {
		return fmt.Errorf("event store: append session chunk: duration %.2f is negative", duration)
	}

	const q = `
		UPDATE realtime_sessions
		SET    chunk_count          = chunk_count + 1,
		       total_duration       = total_duration + $2,
		       avg_chunk_confidence = (COALESCE(avg_chunk_confidence, 0) * chunk_count + $3) / (chunk_count + 1)
		WHERE  session_id = $1
		  AND  ended_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, sessionID, duration, confidence)
	if err != nil {
		return fmt.Errorf("event store: append session chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event store: append session chunk: session %s not found or already closed", sessionID)
	}
	return nil
}

// CloseRealtimeSession implements [quality.EventStore].
func (s *Store) CloseRealtimeSession(ctx context.Context, sessionID uuid.UUID, finalTranscription string) error {
	const q = `
		UPDATE realtime_sessions
		SET    ended_at            = now(),
		       final_transcription = $2
		WHERE  session_id = $1
		  AND  ended_at IS NULL`

	tag, err := s.pool.Exec(ctx, q, sessionID, finalTranscription)
	if err != nil {
		return fmt.Errorf("event store: close realtime session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event store: close realtime session: session %s not found or already closed", sessionID)
	}
	return nil
}

// GetRealtimeSession returns the session with the given ID, or (nil, nil)
// when it does not exist.
func (s *Store) GetRealtimeSession(ctx context.Context, sessionID uuid.UUID) (*quality.RealtimeSession, error) {
	const q = `
		SELECT session_id, user_id, started_at, ended_at, chunk_count,
		       total_duration, final_transcription, avg_chunk_confidence
		FROM   realtime_sessions
		WHERE  session_id = $1`

	var session quality.RealtimeSession
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(
		&session.SessionID,
		&session.UserID,
		&session.StartedAt,
		&session.EndedAt,
		&session.ChunkCount,
		&session.TotalDuration,
		&session.FinalTranscription,
		&session.AvgChunkConfidence,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("event store: get realtime session: %w", err)
	}
	return &session, nil
}

// GetTemplateUsage returns the usage with the given ID, or (nil, nil) when
// it does not exist.
func (s *Store) GetTemplateUsage(ctx context.Context, id int64) (*quality.TemplateUsage, error) {
	const q = `
		SELECT id, created_at, template_key, template_source, processing_time,
		       avg_confidence, low_confidence_count, field_count,
		       transcription_id, user_id, user_corrections
		FROM   template_usages
		WHERE  id = $1`

	var u quality.TemplateUsage
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&u.ID,
		&u.CreatedAt,
		&u.TemplateKey,
		&u.TemplateSource,
		&u.ProcessingTime,
		&u.AvgConfidence,
		&u.LowConfidenceCount,
		&u.FieldCount,
		&u.TranscriptionID,
		&u.UserID,
		&u.UserCorrections,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("event store: get template usage: %w", err)
	}
	return &u, nil
}

// GetExtractedFields returns all extracted fields for a usage ordered by ID.
func (s *Store) GetExtractedFields(ctx context.Context, usageID int64) ([]quality.ExtractedField, error) {
	const q = `
		SELECT id, usage_id, field_name, value, confidence, source, was_corrected
		FROM   extracted_fields
		WHERE  usage_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, usageID)
	if err != nil {
		return nil, fmt.Errorf("event store: get extracted fields: %w", err)
	}

	fields, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (quality.ExtractedField, error) {
		var f quality.ExtractedField
		err := row.Scan(&f.ID, &f.UsageID, &f.FieldName, &f.Value, &f.Confidence, &f.Source, &f.WasCorrected)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("event store: scan extracted fields: %w", err)
	}
	if fields == nil {
		fields = []quality.ExtractedField{}
	}
	return fields, nil
}
