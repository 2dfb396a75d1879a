// Package ledger is the append-only version history of invoices. Every
// successful invoice mutation appends exactly one snapshot in the same
// transaction; version numbers per invoice run 1..n without gaps.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

// AppendInput describes the version being recorded. Snapshot is the state after the mutation.
type AppendInput struct {
	InvoiceID    uuid.UUID
	ChangeType   enums.VersionChangeType
	WasFinalized bool
	Snapshot     Snapshot
	EditedBy     uuid.UUID
	EditReason   *string
	// ExpectVersion, when non-zero, must equal the number allocated for this entry.
	ExpectVersion int
}

// Version is the read model of a stored version.
type Version struct {
	InvoiceID     uuid.UUID               `json:"invoiceId"`
	VersionNumber int                     `json:"versionNumber"`
	ChangeType    enums.VersionChangeType `json:"changeType"`
	WasFinalized  bool                    `json:"wasFinalized"`
	DiffSummary   string                  `json:"diffSummary"`
	EditedBy      uuid.UUID               `json:"editedBy"`
	EditReason    *string                 `json:"editReason,omitempty"`
	Snapshot      json.RawMessage         `json:"snapshot"`
	CreatedAt     string                  `json:"createdAt"`
}

type Service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the version ledger.
func NewService(repo Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{repo: repo, logg: logg}, nil
}

// Append records the next version inside tx and returns its number. The caller owns tx.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (int, error) {
	if tx == nil {
		return 0, fmt.Errorf("ledger append requires a transaction")
	}
	if input.InvoiceID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	if !input.ChangeType.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid change type %q", input.ChangeType))
	}
	if input.EditedBy == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "editor is required")
	}
	if input.ChangeType == enums.VersionEdited && input.WasFinalized && blank(input.EditReason) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "edit reason is required for finalized invoices")
	}

	repo := s.repo.WithTx(tx)
	latest, err := repo.Latest(ctx, input.InvoiceID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest invoice version")
	}

	number := 1
	var prev *Snapshot
	if latest != nil {
		number = latest.VersionNumber + 1
		prev, err = DecodeSnapshot(latest.Snapshot)
		if err != nil {
			// A corrupt predecessor only costs us the diff.
			s.logg.Warn(ctx, fmt.Sprintf("decode invoice version %d: %v", latest.VersionNumber, err))
			prev = nil
		}
	}
	if input.ExpectVersion != 0 && input.ExpectVersion != number {
		return 0, pkgerrors.New(pkgerrors.CodeConcurrentModification,
			fmt.Sprintf("invoice version %d does not follow ledger head %d", input.ExpectVersion, number-1))
	}

	raw, err := json.Marshal(input.Snapshot)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode invoice snapshot")
	}
	summary := initialSummary
	if latest != nil {
		summary = Diff(prev, input.Snapshot)
	}

	version := &models.InvoiceVersion{
		InvoiceID:     input.InvoiceID,
		VersionNumber: number,
		ChangeType:    input.ChangeType,
		WasFinalized:  input.WasFinalized,
		Snapshot:      raw,
		DiffSummary:   summary,
		EditedBy:      input.EditedBy,
		EditReason:    trimmed(input.EditReason),
	}
	if err := repo.Create(ctx, version); err != nil {
		if db.IsUniqueViolation(err, "uq_invoice_versions_number", "invoice_versions.invoice_id") {
			return 0, pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "invoice version already recorded")
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert invoice version")
	}

	ctx = s.logg.WithInvoiceID(ctx, input.InvoiceID.String())
	s.logg.Debug(ctx, fmt.Sprintf("appended invoice version %d (%s): %s", number, input.ChangeType, summary))
	return number, nil
}

// List returns every version of the invoice in ascending order.
func (s *Service) List(ctx context.Context, invoiceID uuid.UUID) ([]Version, error) {
	rows, err := s.repo.List(ctx, invoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoice versions")
	}
	out := make([]Version, 0, len(rows))
	for _, row := range rows {
		out = append(out, toVersion(row))
	}
	return out, nil
}

// Get returns one version.
func (s *Service) Get(ctx context.Context, invoiceID uuid.UUID, number int) (*Version, error) {
	if number < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "version number must be positive")
	}
	row, err := s.repo.Get(ctx, invoiceID, number)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice version not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "get invoice version")
	}
	v := toVersion(*row)
	return &v, nil
}

func toVersion(row models.InvoiceVersion) Version {
	return Version{
		InvoiceID:     row.InvoiceID,
		VersionNumber: row.VersionNumber,
		ChangeType:    row.ChangeType,
		WasFinalized:  row.WasFinalized,
		DiffSummary:   row.DiffSummary,
		EditedBy:      row.EditedBy,
		EditReason:    row.EditReason,
		Snapshot:      json.RawMessage(row.Snapshot),
		CreatedAt:     row.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func trimmed(s *string) *string {
	if blank(s) {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
