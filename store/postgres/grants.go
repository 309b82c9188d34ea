package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zlnvch/folio/models"
	"github.com/zlnvch/folio/store"
)

const (
	selectAccessKeySQL = `SELECT id, document_id, print_limit, print_count, expires_at FROM access_keys WHERE id=$1`

	selectProfileGrantSQL = `
SELECT profile_id, folder_ids, allowed_document_ids, can_print, per_document_print_limits, expires_at
FROM profile_grants WHERE profile_id=$1`

	selectDocumentFolderSQL = `SELECT folder_id FROM documents WHERE id=$1`

	insertDebitSQL = `INSERT INTO print_debits (job_id, document_id, source) VALUES ($1,$2,$3) ON CONFLICT (job_id) DO NOTHING`

	debitAccessKeySQL = `
UPDATE access_keys SET print_count = print_count + 1
WHERE id=$1 AND document_id=$2 AND print_count < print_limit`

	debitProfileLimitSQL = `
UPDATE profile_grants
SET per_document_print_limits = jsonb_set(per_document_print_limits, ARRAY[$2::text], to_jsonb((per_document_print_limits->>$2)::int - 1))
WHERE profile_id=$1 AND (per_document_print_limits->>$2)::int > 0`
)

// GrantRepo implements store.GrantStore on PostgreSQL.
type GrantRepo struct{ db *DB }

func NewGrantRepo(db *DB) *GrantRepo { return &GrantRepo{db: db} }

func (r *GrantRepo) GetAccessKey(ctx context.Context, accessKeyId string) (models.AccessKey, error) {
	var k models.AccessKey
	row := r.db.Pool.QueryRow(ctx, selectAccessKeySQL, accessKeyId)
	if err := row.Scan(&k.Id, &k.DocumentId, &k.PrintLimit, &k.PrintCount, &k.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AccessKey{}, store.ErrItemNotFound
		}
		return models.AccessKey{}, err
	}
	return k, nil
}

func (r *GrantRepo) GetProfileGrant(ctx context.Context, profileId string) (models.ProfileGrant, error) {
	var (
		g      models.ProfileGrant
		limits []byte
	)
	row := r.db.Pool.QueryRow(ctx, selectProfileGrantSQL, profileId)
	if err := row.Scan(&g.ProfileId, &g.FolderIds, &g.AllowedDocumentIds, &g.CanPrint, &limits, &g.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ProfileGrant{}, store.ErrItemNotFound
		}
		return models.ProfileGrant{}, err
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &g.PerDocumentPrintLimits); err != nil {
			return models.ProfileGrant{}, fmt.Errorf("per-document print limits: %w", err)
		}
	}
	return g, nil
}

func (r *GrantRepo) GetDocumentFolder(ctx context.Context, documentId string) (string, error) {
	var folderId string
	if err := r.db.Pool.QueryRow(ctx, selectDocumentFolderSQL, documentId).Scan(&folderId); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", store.ErrItemNotFound
		}
		return "", err
	}
	return folderId, nil
}

// ApplyDebit consumes one unit from the debit's source. The job id is recorded in the
// same transaction, so a redelivered debit returns store.ErrAlreadyApplied and an
// allowance that is already used up returns store.ErrConditionFailed.
func (r *GrantRepo) ApplyDebit(ctx context.Context, debit models.Debit) (err error) {
	var (
		upd string
		id  string
	)
	switch debit.Source {
	case models.PrintSourceAccessKey:
		upd, id = debitAccessKeySQL, debit.AccessKeyId
	case models.PrintSourceProfileLimit:
		upd, id = debitProfileLimitSQL, debit.ProfileId
	case models.PrintSourceProfileGlobal:
		// the global flag is not a counter
		return nil
	default:
		return fmt.Errorf("debit %s: unsupported source %s", debit.JobId, debit.Source)
	}

	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	tag, err := tx.Exec(ctx, insertDebitSQL, debit.JobId, debit.DocumentId, debit.Source.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyApplied
	}

	tag, err = tx.Exec(ctx, upd, id, debit.DocumentId)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConditionFailed
	}
	return nil
}
