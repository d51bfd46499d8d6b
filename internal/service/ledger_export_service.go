package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/pkg/config"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/export"
)

// ExportFormat enumerates supported audit export encodings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type ledgerQuerier interface {
	Query(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, *models.Pagination, error)
}

// ExportResult holds a rendered audit document ready for download.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	RowCount    int
}

// LedgerExportService renders ledger query results as downloadable audit
// documents. Exports are generated synchronously and capped by MaxRows.
type LedgerExportService struct {
	ledger ledgerQuerier
	cfg    config.ExportsConfig
	logger *zap.Logger
}

// NewLedgerExportService constructs a LedgerExportService.
func NewLedgerExportService(ledger ledgerQuerier, cfg config.ExportsConfig, logger *zap.Logger) *LedgerExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	return &LedgerExportService{ledger: ledger, cfg: cfg, logger: logger}
}

// Export runs the ledger query and renders the result in the requested
// format.
func (s *LedgerExportService) Export(ctx context.Context, filter models.LedgerFilter, format ExportFormat) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled")
	}

	filter.Page = 1
	filter.PageSize = s.cfg.MaxRows
	entries, _, err := s.ledger.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	table := buildLedgerTable(entries)
	stamp := time.Now().UTC().Format("20060102-150405")

	var payload []byte
	var contentType, filename string
	switch format {
	case ExportFormatCSV:
		payload, err = export.RenderCSV(table)
		contentType = "text/csv"
		filename = fmt.Sprintf("ledger-audit-%s.csv", stamp)
	case ExportFormatPDF:
		payload, err = export.RenderPDF(table, s.cfg.Title)
		contentType = "application/pdf"
		filename = fmt.Sprintf("ledger-audit-%s.pdf", stamp)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("ledger export generated",
		zap.String("format", string(format)),
		zap.Int("rows", len(entries)),
	)
	return &ExportResult{
		Filename:    filename,
		ContentType: contentType,
		Payload:     payload,
		RowCount:    len(entries),
	}, nil
}

func buildLedgerTable(entries []models.LedgerEntry) export.Table {
	table := export.Table{
		Columns: []string{"Seq", "Tx Hash", "Action", "Actor", "Entity", "Status", "Block", "Gas", "Recorded At"},
		Rows:    make([][]string, 0, len(entries)),
	}
	for _, e := range entries {
		block := ""
		if e.BlockNumber != nil {
			block = strconv.FormatInt(*e.BlockNumber, 10)
		}
		gas := ""
		if e.GasUsed != nil {
			gas = strconv.FormatInt(*e.GasUsed, 10)
		}
		entity := strings.TrimSuffix(fmt.Sprintf("%s/%s", e.EntityType, e.EntityID), "/")
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(e.Seq, 10),
			shortHash(e.TxHash),
			e.ActionType,
			e.ActorWallet,
			entity,
			string(e.Status),
			block,
			gas,
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return table
}

// shortHash abbreviates a transaction hash for tabular display.
func shortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:10] + ".." + hash[len(hash)-4:]
}
