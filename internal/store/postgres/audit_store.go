package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)

// AuditStore implements domain.AuditStore on the audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends an entry. detail is stored as JSONB; its "user_id" and
// "asset" values are copied into indexed columns.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	userID, asset := auditSubject(detail)

	const query = `INSERT INTO audit_log (event, user_id, asset, detail) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, event, userID, asset, detailJSON); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first, filtered by opts.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := buildListQuery(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var (
			e          domain.AuditEntry
			userID     *int64
			asset      *string
			detailJSON []byte
		)
		if err := row.Scan(&e.ID, &e.Event, &userID, &asset, &detailJSON, &e.CreatedAt); err != nil {
			return e, err
		}
		if userID != nil {
			e.UserID = *userID
		}
		if asset != nil {
			e.Asset = *asset
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return e, fmt.Errorf("unmarshal detail: %w", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit entries: %w", err)
	}
	return entries, nil
}

func buildListQuery(opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if opts.Since != nil {
		add("created_at >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		add("created_at <= $%d", *opts.Until)
	}
	if opts.UserID != 0 {
		add("user_id = $%d", opts.UserID)
	}
	if opts.Asset != "" {
		add("asset = $%d", domain.NormalizeAsset(opts.Asset))
	}
	if opts.Event != "" {
		add("event = $%d", opts.Event)
	}

	var b strings.Builder
	b.WriteString("SELECT id, event, user_id, asset, detail, created_at FROM audit_log")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

// auditSubject extracts the indexed columns from detail. Missing values are
// returned as nil so they are stored as NULL.
func auditSubject(detail map[string]any) (userID *int64, asset *string) {
	switch v := detail["user_id"].(type) {
	case int64:
		userID = &v
	case int:
		id := int64(v)
		userID = &id
	case float64:
		id := int64(v)
		userID = &id
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			userID = &id
		}
	}
	if a, ok := detail["asset"].(string); ok && a != "" {
		a = domain.NormalizeAsset(a)
		asset = &a
	}
	return userID, asset
}
