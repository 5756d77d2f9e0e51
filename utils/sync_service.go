package utils

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"clientportal/models"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SyncResult is the outcome of one tenant sync.
type SyncResult struct {
	NewCount     int `json:"newCalls"`
	UpdatedCount int `json:"updatedCalls"`
}

// SyncProgress is invoked at page boundaries during a sync.
type SyncProgress func(page, totalPages, fetched int)

type inflightSync struct {
	done   chan struct{}
	result *SyncResult
	err    error
}

// SyncService pulls activities from the call-tracking provider into the
// lead store: watermark-based incremental fetch, idempotent upsert on
// (tenant, external id), identity resolution and auto-classification.
type SyncService struct {
	DB         *gorm.DB
	Classifier *Classifier
	// SourceFor builds the provider client for a tenant. Swappable for tests.
	SourceFor func(user *models.User) (ActivitySource, error)
	Logger    *logrus.Entry

	mu       chan struct{} // guards inflight
	inflight map[uint]*inflightSync
}

func NewSyncService(db *gorm.DB, classifier *Classifier) *SyncService {
	s := &SyncService{
		DB:         db,
		Classifier: classifier,
		SourceFor:  NewTenantActivitySource,
		Logger:     logrus.WithField("component", "sync"),
		mu:         make(chan struct{}, 1),
		inflight:   make(map[uint]*inflightSync),
	}
	s.mu <- struct{}{}
	return s
}

func (s *SyncService) lock()   { <-s.mu }
func (s *SyncService) unlock() { s.mu <- struct{}{} }

// Sync fetches everything newer than the tenant's watermark. At most one
// sync runs per tenant; concurrent callers wait for and share the in-flight
// result. Cancellation is honored at page boundaries.
func (s *SyncService) Sync(ctx context.Context, user *models.User, forceFull bool, progress SyncProgress) (*SyncResult, error) {
	s.lock()
	if call, ok := s.inflight[user.ID]; ok {
		s.unlock()
		select {
		case <-call.done:
			return call.result, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &inflightSync{done: make(chan struct{})}
	s.inflight[user.ID] = call
	s.unlock()

	call.result, call.err = s.run(ctx, user, forceFull, progress)
	close(call.done)

	s.lock()
	delete(s.inflight, user.ID)
	s.unlock()

	return call.result, call.err
}

func (s *SyncService) run(ctx context.Context, user *models.User, forceFull bool, progress SyncProgress) (*SyncResult, error) {
	source, err := s.SourceFor(user)
	if err != nil {
		return nil, err
	}

	var since time.Time
	if !forceFull {
		since = s.watermark(user.ID)
	}

	log := s.Logger.WithFields(logrus.Fields{"user_id": user.ID, "since": since})
	log.Info("sync started")

	result := &SyncResult{}
	fetched := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := source.FetchActivities(ctx, user.TrackingAccountID, since, page)
		if err != nil {
			if errors.Is(err, ErrBudgetExceeded) {
				// Stop for this tick; the watermark already covers what landed.
				log.Warn("provider budget exceeded, stopping sync tick")
				return result, nil
			}
			if !errors.Is(err, ErrUpstreamUnavailable) && !errors.Is(err, ErrUpstreamAuth) {
				sentry.CaptureException(err)
			}
			return result, err
		}

		for i := range batch.Activities {
			isNew, err := s.upsertActivity(ctx, user, &batch.Activities[i])
			if err != nil {
				sentry.CaptureException(err)
				return result, err
			}
			if isNew {
				result.NewCount++
			} else {
				result.UpdatedCount++
			}
		}
		fetched += len(batch.Activities)
		if progress != nil {
			progress(page, batch.TotalPages, fetched)
		}
		if page >= batch.TotalPages || len(batch.Activities) == 0 {
			break
		}
	}

	log.WithFields(logrus.Fields{"new": result.NewCount, "updated": result.UpdatedCount}).Info("sync finished")
	return result, nil
}

// watermark returns the most recent sync stamp across the tenant's cached
// activities, or zero for a first sync.
func (s *SyncService) watermark(userID uint) time.Time {
	row := s.DB.Model(&models.CallActivity{}).
		Where("user_id = ?", userID).
		Select("MAX(last_synced_at)").
		Row()
	var latest sql.NullTime
	if err := row.Scan(&latest); err != nil || !latest.Valid {
		return time.Time{}
	}
	return latest.Time
}

// upsertActivity is idempotent on (user, external id): re-ingesting an
// activity refreshes the provider fields and never touches workflow state.
func (s *SyncService) upsertActivity(ctx context.Context, user *models.User, pa *ProviderActivity) (bool, error) {
	now := time.Now().UTC()
	isNew := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.CallActivity
		err := tx.Where("user_id = ? AND external_id = ?", user.ID, pa.ID).First(&existing).Error
		if err == nil {
			return tx.Model(&existing).Updates(map[string]interface{}{
				"caller_name":    pa.CallerName,
				"duration_sec":   pa.DurationSec,
				"transcript":     pa.Transcript,
				"recording_url":  pa.RecordingURL,
				"transcript_url": pa.TranscriptURL,
				"message":        pa.Message,
				"contact_id":     pa.ContactID,
				"last_synced_at": now,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		isNew = true
		phone := NormalizePhone(pa.CallerNumber, user.DefaultCountryCode)
		key := CallerKey(phone, pa.CallerEmail)

		activity := models.CallActivity{
			UserID:         user.ID,
			ExternalID:     pa.ID,
			ActivityType:   pa.Type,
			Direction:      pa.Direction,
			CallerName:     pa.CallerName,
			CallerNumber:   phone,
			CallerEmail:    pa.CallerEmail,
			CallerKey:      key,
			Source:         pa.Source,
			SourceKey:      pa.SourceKey,
			Region:         pa.Region,
			StartedAt:      pa.StartedAt.UTC(),
			DurationSec:    pa.DurationSec,
			Transcript:     pa.Transcript,
			RecordingURL:   pa.RecordingURL,
			TranscriptURL:  pa.TranscriptURL,
			Message:        pa.Message,
			ContactID:      pa.ContactID,
			Category:       models.CategoryUnreviewed,
			CategorySource: models.CategorySourceAuto,
			LastSyncedAt:   now,
		}

		if err := s.resolveIdentity(tx, user.ID, &activity); err != nil {
			return err
		}
		if _, err := s.Classifier.Classify(ctx, &activity); err != nil {
			// Classification failures leave the lead unreviewed rather than
			// losing the activity.
			s.Logger.WithError(err).WithField("external_id", pa.ID).Warn("classification failed")
		}

		return tx.Create(&activity).Error
	})
	return isNew, err
}

// resolveIdentity maintains the Caller row for the activity's key and
// computes call_sequence and caller_type.
func (s *SyncService) resolveIdentity(tx *gorm.DB, userID uint, a *models.CallActivity) error {
	if a.CallerKey == "" {
		a.CallSequence = 1
		a.CallerType = models.CallerTypeNew
		return nil
	}

	var prior int64
	if err := tx.Model(&models.CallActivity{}).
		Where("user_id = ? AND caller_key = ?", userID, a.CallerKey).
		Count(&prior).Error; err != nil {
		return err
	}
	a.CallSequence = int(prior) + 1

	switch {
	case a.CallSequence == 1:
		a.CallerType = models.CallerTypeNew
	case s.isReturningCustomer(tx, userID, a.CallerKey):
		a.CallerType = models.CallerTypeReturning
	default:
		a.CallerType = models.CallerTypeRepeat
	}

	var caller models.Caller
	err := tx.Where("user_id = ? AND caller_key = ?", userID, a.CallerKey).First(&caller).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		caller = models.Caller{
			UserID:      userID,
			CallerKey:   a.CallerKey,
			FirstSeenAt: a.StartedAt,
			LastSeenAt:  a.StartedAt,
			TotalCount:  1,
		}
		return tx.Create(&caller).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"total_count": gorm.Expr("total_count + ?", 1),
	}
	if a.StartedAt.After(caller.LastSeenAt) {
		updates["last_seen_at"] = a.StartedAt
	}
	if a.StartedAt.Before(caller.FirstSeenAt) {
		updates["first_seen_at"] = a.StartedAt
	}
	return tx.Model(&caller).Updates(updates).Error
}

func (s *SyncService) isReturningCustomer(tx *gorm.DB, userID uint, key string) bool {
	var converted int64
	tx.Model(&models.CallActivity{}).
		Where("user_id = ? AND caller_key = ? AND category = ?", userID, key, models.CategoryConverted).
		Count(&converted)
	if converted > 0 {
		return true
	}

	var clients int64
	tx.Model(&models.ActiveClient{}).
		Where("user_id = ? AND caller_key = ?", userID, key).
		Count(&clients)
	return clients > 0
}

// ClearAndReload drops the tenant's cached activities (and their tags and
// notes) and re-syncs from scratch.
func (s *SyncService) ClearAndReload(ctx context.Context, user *models.User) (*SyncResult, error) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.CallActivity{}).Where("user_id = ?", user.ID).Pluck("id", &ids).Error; err != nil {
			return err
		}
		// Hard deletes: soft-deleted rows would still occupy the
		// (user, external_id) unique index and block the reload.
		if len(ids) > 0 {
			if err := tx.Unscoped().Where("activity_id IN ?", ids).Delete(&models.ActivityTag{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("activity_id IN ?", ids).Delete(&models.ActivityNote{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Unscoped().Where("user_id = ?", user.ID).Delete(&models.CallActivity{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("user_id = ?", user.ID).Delete(&models.Caller{}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx, user, true, nil)
}
