package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/educhain-labs/governance-api/internal/models"
	"github.com/educhain-labs/governance-api/pkg/config"
	appErrors "github.com/educhain-labs/governance-api/pkg/errors"
	"github.com/educhain-labs/governance-api/pkg/jobs"
)

type ledgerStore interface {
	Append(ctx context.Context, entry *models.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	Query(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error)
	Settle(ctx context.Context, id string, status models.LedgerStatus, blockNumber, gasUsed int64) error
	MaxBlockNumber(ctx context.Context) (int64, error)
}

const ledgerConfirmJobType = "ledger_confirm"

// LedgerService owns the append-only ledger: appends, queries, and the
// asynchronous settlement worker that moves entries from pending to
// confirmed, assigning block numbers and a gas-equivalent cost metric.
type LedgerService struct {
	repo    ledgerStore
	queue   *jobs.Queue
	cache   *redis.Client
	cfg     config.LedgerConfig
	cacheCfg config.CacheConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewLedgerService constructs the service and its confirmation queue. Call
// Start before appending and Stop on shutdown.
func NewLedgerService(repo ledgerStore, cache *redis.Client, cfg config.LedgerConfig, cacheCfg config.CacheConfig, metrics *MetricsService, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LedgerService{
		repo:     repo,
		cache:    cache,
		cfg:      cfg,
		cacheCfg: cacheCfg,
		metrics:  metrics,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("ledger-confirm", s.handleConfirmJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the settlement workers.
func (s *LedgerService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the settlement workers.
func (s *LedgerService) Stop() {
	s.queue.Stop()
}

// Append records a governance action. The entry is persisted as pending
// and settlement is queued; settlement failures never mutate what was
// appended.
func (s *LedgerService) Append(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	if entry.TxHash == "" {
		entry.TxHash = newTxHash(entry.ActionType, entry.ActorWallet, entry.EntityID)
	}
	entry.Status = models.LedgerStatusPending
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger entry")
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerAppend(entry.ActionType)
	}
	s.bumpCacheVersion(ctx)

	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: ledgerConfirmJobType}); err != nil {
		// The entry stays pending; the next settlement sweep or restart
		// can pick it up. Appends must not fail because of this.
		s.logger.Warn("failed to queue ledger settlement", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	return entry, nil
}

// AppendFailed records a rejected action directly as a failed entry. No
// settlement is queued; failed is a terminal status.
func (s *LedgerService) AppendFailed(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	if entry.TxHash == "" {
		entry.TxHash = newTxHash(entry.ActionType, entry.ActorWallet, entry.EntityID)
	}
	entry.Status = models.LedgerStatusFailed
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger entry")
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerAppend(entry.ActionType)
	}
	s.bumpCacheVersion(ctx)
	return entry, nil
}

// Get returns a single entry by id.
func (s *LedgerService) Get(ctx context.Context, id string) (*models.LedgerEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entry")
	}
	return entry, nil
}

// Query returns entries matching the filter with pagination. Reads are
// served from cache when enabled; cached pages are invalidated by version
// on every append, so they are eventually consistent and never used inside
// the validation path.
func (s *LedgerService) Query(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, *models.Pagination, error) {
	if cached, pagination, ok := s.cachedQuery(ctx, filter); ok {
		return cached, pagination, nil
	}

	entries, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query ledger")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	s.storeQuery(ctx, filter, entries, pagination)
	return entries, pagination, nil
}

func (s *LedgerService) handleConfirmJob(ctx context.Context, job jobs.Job) error {
	if s.cfg.ConfirmDelay > 0 {
		timer := time.NewTimer(s.cfg.ConfirmDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	entry, err := s.repo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load ledger entry %s: %w", job.ID, err)
	}
	if entry.Status != models.LedgerStatusPending {
		// Settled by an earlier attempt; nothing to do.
		return nil
	}

	maxBlock, err := s.repo.MaxBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("next block number: %w", err)
	}
	gas := s.cfg.GasBase + s.cfg.GasPerByte*int64(len(entry.Delta))

	if err := s.repo.Settle(ctx, entry.ID, models.LedgerStatusConfirmed, maxBlock+1, gas); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The pending guard lost: someone settled the entry between our
			// read and this write. Mutating a settled entry must never
			// happen, so this is surfaced for operators and not retried.
			s.logger.Error("ledger integrity violation: entry already settled",
				zap.String("entry_id", entry.ID),
				zap.String("code", appErrors.ErrLedgerIntegrity.Code),
			)
			return nil
		}
		return fmt.Errorf("settle ledger entry %s: %w", entry.ID, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveLedgerSettle(string(models.LedgerStatusConfirmed))
	}
	s.bumpCacheVersion(ctx)
	return nil
}

const ledgerCacheVersionKey = "ledger:cache:version"

func (s *LedgerService) cachedQuery(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, *models.Pagination, bool) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return nil, nil, false
	}
	key, err := s.cacheKey(ctx, filter)
	if err != nil {
		return nil, nil, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, nil, false
	}
	var payload cachedLedgerPage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, false
	}
	if s.metrics != nil {
		s.metrics.ObserveCacheHit()
	}
	return payload.Entries, payload.Pagination, true
}

func (s *LedgerService) storeQuery(ctx context.Context, filter models.LedgerFilter, entries []models.LedgerEntry, pagination *models.Pagination) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return
	}
	key, err := s.cacheKey(ctx, filter)
	if err != nil {
		return
	}
	raw, err := json.Marshal(cachedLedgerPage{Entries: entries, Pagination: pagination})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheCfg.LedgerTTL).Err(); err != nil {
		s.logger.Debug("ledger cache write failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.ObserveCacheMiss()
	}
}

func (s *LedgerService) bumpCacheVersion(ctx context.Context) {
	if s.cache == nil || !s.cacheCfg.Enabled {
		return
	}
	if err := s.cache.Incr(ctx, ledgerCacheVersionKey).Err(); err != nil {
		s.logger.Debug("ledger cache version bump failed", zap.Error(err))
	}
}

func (s *LedgerService) cacheKey(ctx context.Context, filter models.LedgerFilter) (string, error) {
	version, err := s.cache.Get(ctx, ledgerCacheVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("ledger:q:%d:%s", version, hex.EncodeToString(sum[:8])), nil
}

type cachedLedgerPage struct {
	Entries    []models.LedgerEntry `json:"entries"`
	Pagination *models.Pagination   `json:"pagination"`
}

// newTxHash derives a transaction-hash equivalent for an entry. Randomness
// keeps hashes unique even for identical payloads in the same instant.
func newTxHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	h.Write([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	h.Write(nonce)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
