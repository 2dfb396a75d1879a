package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/invoice-ledger/pkg/db/types"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
)

// InvoiceVersion is an append-only snapshot of an invoice and its lines.
type InvoiceVersion struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID     uuid.UUID               `gorm:"column:invoice_id;type:uuid;not null"`
	VersionNumber int                     `gorm:"column:version_number;not null"`
	ChangeType    enums.VersionChangeType `gorm:"column:change_type;not null"`
	WasFinalized  bool                    `gorm:"column:was_finalized;not null"`
	Snapshot      dbtypes.JSONDocument    `gorm:"column:snapshot;type:jsonb;not null"`
	DiffSummary   string                  `gorm:"column:diff_summary;not null"`
	EditedBy      uuid.UUID               `gorm:"column:edited_by;type:uuid;not null"`
	EditReason    *string                 `gorm:"column:edit_reason"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (InvoiceVersion) TableName() string { return "invoice_versions" }

func (v *InvoiceVersion) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
