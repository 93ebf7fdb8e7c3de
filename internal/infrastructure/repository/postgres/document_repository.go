package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
)

const documentColumns = `id, title, original_filename, content_type, file_size, file_bucket, file_object_key,
	processing_status, processing_error, ocr_text, ocr_text_object_key, summary_text,
	created_at, ocr_processed_at, genai_processed_at, updated_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024100101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	file_bucket TEXT NOT NULL,
	file_object_key TEXT NOT NULL,
	processing_status TEXT NOT NULL,
	processing_error TEXT,
	ocr_text TEXT,
	ocr_text_object_key TEXT,
	summary_text TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	ocr_processed_at TIMESTAMPTZ,
	genai_processed_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT documents_single_ocr_representation CHECK (ocr_text IS NULL OR ocr_text_object_key IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_documents_status_updated ON documents(processing_status, updated_at);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	inline, _ := doc.OCR.Inline()
	objectKey, _ := doc.OCR.ObjectKey()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		doc.ID, doc.Title, doc.OriginalFilename, doc.ContentType, doc.FileSize, doc.File.Bucket, doc.File.Key,
		string(doc.Status()), nullString(doc.State.Failure()), nullString(inline), nullString(objectKey), nullString(doc.Summary),
		doc.CreatedAt, nullTime(doc.OCRProcessedAt), nullTime(doc.GenAIProcessedAt), doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return doc, nil
}

// Transition applies next as a compare-and-set on the processing status.
// afterCommit runs only once the update is committed. Its error is logged and
// leaves the transition in place.
func (r *DocumentRepository) Transition(ctx context.Context, next *domain.Document, from domain.ProcessingStatus, afterCommit ports.AfterCommitHook) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	inline, _ := next.OCR.Inline()
	objectKey, _ := next.OCR.ObjectKey()

	res, err := tx.ExecContext(ctx, `
UPDATE documents
SET processing_status = $3, processing_error = $4, ocr_text = $5, ocr_text_object_key = $6,
	summary_text = $7, ocr_processed_at = $8, genai_processed_at = $9, updated_at = $10
WHERE id = $1 AND processing_status = $2
`,
		next.ID, string(from), string(next.Status()), nullString(next.State.Failure()),
		nullString(inline), nullString(objectKey), nullString(next.Summary),
		nullTime(next.OCRProcessedAt), nullTime(next.GenAIProcessedAt), next.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if affected == 0 {
		return r.missingOrStale(ctx, tx, next.ID, from)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}

	if afterCommit != nil {
		if err := afterCommit(ctx); err != nil {
			slog.Warn("transition_after_commit_failed", "document_id", next.ID, "to", next.Status(), "error", err)
		}
	}
	return nil
}

func (r *DocumentRepository) missingOrStale(ctx context.Context, tx *sql.Tx, id string, from domain.ProcessingStatus) error {
	var current string
	err := tx.QueryRowContext(ctx, `SELECT processing_status FROM documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrDocumentNotFound, "transition document", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("read current status: %w", err)
	}
	return domain.WrapError(domain.ErrStaleTransition, "transition document", fmt.Errorf("id=%s expected %s, found %s", id, from, current))
}

func (r *DocumentRepository) UpdateTitle(ctx context.Context, id, title string, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET title = $2, updated_at = $3
WHERE id = $1
`, id, title, updatedAt)
	if err != nil {
		return fmt.Errorf("update document title: %w", err)
	}
	return requireAffected(res, "update document title", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, "delete document", id)
}

func (r *DocumentRepository) ListStale(ctx context.Context, statuses []domain.ProcessingStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{updatedBefore, limit}
	placeholders := make([]string, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE processing_status IN (`+strings.Join(placeholders, ",")+`) AND updated_at < $1
ORDER BY updated_at
LIMIT $2
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc                               domain.Document
		status                            string
		failure, ocrText, ocrKey, summary sql.NullString
		ocrProcessedAt, genaiProcessedAt  sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.OriginalFilename, &doc.ContentType, &doc.FileSize, &doc.File.Bucket, &doc.File.Key,
		&status, &failure, &ocrText, &ocrKey, &summary,
		&doc.CreatedAt, &ocrProcessedAt, &genaiProcessedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	state, err := domain.RestoreState(domain.ProcessingStatus(status), failure.String)
	if err != nil {
		return nil, err
	}
	ocr, err := domain.RestoreOCRText(ocrText.String, ocrKey.String)
	if err != nil {
		return nil, err
	}
	doc.State = state
	doc.OCR = ocr
	doc.Summary = summary.String
	if ocrProcessedAt.Valid {
		t := ocrProcessedAt.Time
		doc.OCRProcessedAt = &t
	}
	if genaiProcessedAt.Valid {
		t := genaiProcessedAt.Time
		doc.GenAIProcessedAt = &t
	}
	return &doc, nil
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
