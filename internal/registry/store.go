package registry

import (
	"context"

	id "quorum/pkg/domain"
)

// Store persists companies and shareholders. Implementations enforce the
// issuance invariant: the sum of active shareholder holdings never exceeds
// the company's total issued shares.
type Store interface {
	SaveCompany(ctx context.Context, company Company) error
	FindCompany(ctx context.Context, companyID id.CompanyID) (Company, error)
	SaveShareholder(ctx context.Context, holder Shareholder) error
	FindShareholder(ctx context.Context, holderID id.ShareholderID) (Shareholder, error)
	ListShareholders(ctx context.Context, companyID id.CompanyID) ([]Shareholder, error)
	// UpdateShares sets a shareholder's live share count. Transfers outside a
	// frozen snapshot window are legal at any time.
	UpdateShares(ctx context.Context, holderID id.ShareholderID, shares int64) error
	CurrentShares(ctx context.Context, companyID id.CompanyID, shareholderID id.ShareholderID) (int64, error)
}

// ShareRegistry is the collaborator port the voting engine consumes: the
// company's shareholder roll at snapshot and notice time.
type ShareRegistry interface {
	ListShareholders(ctx context.Context, companyID id.CompanyID) ([]Shareholder, error)
}
