// Package registry is the source of truth for current share ownership. The
// voting engine consumes it through the ShareRegistry port; share counts here
// are live and may change at any time, which is exactly why meetings freeze
// them into weight snapshots at the record date.
package registry

import (
	id "quorum/pkg/domain"
)

// Company owns shareholders and meetings. TotalShares bounds the sum of all
// active shareholder holdings.
type Company struct {
	ID          id.CompanyID
	Name        string
	TotalShares int64
}

// ContactChannel is the shareholder's preferred notification channel.
type ContactChannel string

const (
	ChannelEmail    ContactChannel = "email"
	ChannelWhatsApp ContactChannel = "whatsapp"
)

// Shareholder holds live share ownership. Shares may change at any time
// outside a frozen snapshot window. Address is channel-specific: an email
// address or a phone number.
type Shareholder struct {
	ID           id.ShareholderID
	CompanyID    id.CompanyID
	Name         string
	Shares       int64
	Verification id.VerificationStatus
	Contact      ContactChannel
	Address      string
}
