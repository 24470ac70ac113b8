package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// PostgresStore persists the share registry. The issuance invariant is
// enforced inside a transaction so concurrent transfers cannot oversubscribe
// the company.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveCompany(ctx context.Context, company Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, total_shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, total_shares = EXCLUDED.total_shares
	`, uuid.UUID(company.ID), company.Name, company.TotalShares)
	if err != nil {
		return fmt.Errorf("save company: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCompany(ctx context.Context, companyID id.CompanyID) (Company, error) {
	var (
		company Company
		raw     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, total_shares FROM companies WHERE id = $1
	`, uuid.UUID(companyID)).Scan(&raw, &company.Name, &company.TotalShares)
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, fmt.Errorf("company %s: %w", companyID, sentinel.ErrNotFound)
	}
	if err != nil {
		return Company{}, fmt.Errorf("find company: %w", err)
	}
	company.ID, err = id.ParseCompanyID(raw)
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

func (s *PostgresStore) SaveShareholder(ctx context.Context, holder Shareholder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save shareholder: %w", err)
	}
	defer tx.Rollback()

	if err := checkIssuanceTx(ctx, tx, holder.CompanyID, holder.ID, holder.Shares); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shareholders (id, company_id, name, shares, verification, contact, contact_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			shares = EXCLUDED.shares,
			verification = EXCLUDED.verification,
			contact = EXCLUDED.contact,
			contact_address = EXCLUDED.contact_address
	`, uuid.UUID(holder.ID), uuid.UUID(holder.CompanyID), holder.Name,
		holder.Shares, string(holder.Verification), string(holder.Contact), holder.Address)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return fmt.Errorf("company %s: %w", holder.CompanyID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("save shareholder: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save shareholder: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindShareholder(ctx context.Context, holderID id.ShareholderID) (Shareholder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, shares, verification, contact, contact_address
		FROM shareholders WHERE id = $1
	`, uuid.UUID(holderID))
	holder, err := scanShareholder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Shareholder{}, fmt.Errorf("shareholder %s: %w", holderID, sentinel.ErrNotFound)
	}
	return holder, err
}

func (s *PostgresStore) ListShareholders(ctx context.Context, companyID id.CompanyID) ([]Shareholder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, shares, verification, contact, contact_address
		FROM shareholders WHERE company_id = $1
		ORDER BY id
	`, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("list shareholders: %w", err)
	}
	defer rows.Close()

	var out []Shareholder
	for rows.Next() {
		holder, err := scanShareholder(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, holder)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateShares(ctx context.Context, holderID id.ShareholderID, shares int64) error {
	if shares < 0 {
		return fmt.Errorf("negative share count: %w", sentinel.ErrInvalidState)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update shares: %w", err)
	}
	defer tx.Rollback()

	var companyRaw string
	err = tx.QueryRowContext(ctx, `
		SELECT company_id FROM shareholders WHERE id = $1 FOR UPDATE
	`, uuid.UUID(holderID)).Scan(&companyRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("shareholder %s: %w", holderID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock shareholder: %w", err)
	}
	companyID, err := id.ParseCompanyID(companyRaw)
	if err != nil {
		return err
	}
	if err := checkIssuanceTx(ctx, tx, companyID, holderID, shares); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE shareholders SET shares = $2 WHERE id = $1
	`, uuid.UUID(holderID), shares); err != nil {
		return fmt.Errorf("update shares: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update shares: %w", err)
	}
	return nil
}

func (s *PostgresStore) CurrentShares(ctx context.Context, companyID id.CompanyID, shareholderID id.ShareholderID) (int64, error) {
	var shares int64
	err := s.db.QueryRowContext(ctx, `
		SELECT shares FROM shareholders WHERE id = $1 AND company_id = $2
	`, uuid.UUID(shareholderID), uuid.UUID(companyID)).Scan(&shares)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("shareholder %s: %w", shareholderID, sentinel.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("current shares: %w", err)
	}
	return shares, nil
}

func checkIssuanceTx(ctx context.Context, tx *sql.Tx, companyID id.CompanyID, holderID id.ShareholderID, proposed int64) error {
	var total, others int64
	err := tx.QueryRowContext(ctx, `
		SELECT c.total_shares,
		       COALESCE((SELECT SUM(shares) FROM shareholders WHERE company_id = c.id AND id <> $2), 0)
		FROM companies c WHERE c.id = $1
	`, uuid.UUID(companyID), uuid.UUID(holderID)).Scan(&total, &others)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("company %s: %w", companyID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check issuance: %w", err)
	}
	if others+proposed > total {
		return fmt.Errorf("share issuance exceeded for company %s: %w", companyID, sentinel.ErrInvalidState)
	}
	return nil
}

func scanShareholder(scan func(dest ...any) error) (Shareholder, error) {
	var (
		holder       Shareholder
		rawID        string
		rawCompany   string
		verification string
		contact      string
	)
	if err := scan(&rawID, &rawCompany, &holder.Name, &holder.Shares, &verification, &contact, &holder.Address); err != nil {
		return Shareholder{}, err
	}
	var err error
	if holder.ID, err = id.ParseShareholderID(rawID); err != nil {
		return Shareholder{}, err
	}
	if holder.CompanyID, err = id.ParseCompanyID(rawCompany); err != nil {
		return Shareholder{}, err
	}
	if holder.Verification, err = id.ParseVerificationStatus(verification); err != nil {
		return Shareholder{}, err
	}
	holder.Contact = ContactChannel(contact)
	return holder, nil
}
