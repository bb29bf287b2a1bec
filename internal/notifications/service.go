package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew   = "notifications.service.new"
	opNotify       = "notifications.notify"
	opList         = "notifications.list"
	opMarkRead     = "notifications.mark_read"
	opMarkAllRead  = "notifications.mark_all_read"
	opUnreadCount  = "notifications.unread_count"
	defaultListCap = 100
)

var (
	ErrNotificationNotFound = apperrors.NotFound("notifications: notification not found")

	errMissingDatabase = errors.New("database handle is required")
	errMissingUserID   = errors.New("user identifier is required")
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error { return e.err }

func (e *ServiceError) Code() string { return e.code }

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}

type ServiceConfig struct {
	Database  *gorm.DB
	Publisher realtime.Publisher
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service stores inbox entries and pushes realtime events to recipients.
type Service struct {
	db        *gorm.DB
	publisher realtime.Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		publisher: cfg.Publisher,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Notify persists the notice for each distinct recipient and publishes a
// realtime event. Persistence failures abort before anything is published.
func (s *Service) Notify(ctx context.Context, notice Notice) error {
	recipients := distinct(notice.Recipients)
	if len(recipients) == 0 {
		return nil
	}
	now := s.clock().UTC()
	message := strings.TrimSpace(notice.Message)

	if message != "" {
		rows := make([]Notification, 0, len(recipients))
		for _, userID := range recipients {
			id, err := uuid.NewV7()
			if err != nil {
				return newServiceError(opNotify, "id_generation_failed", err)
			}
			rows = append(rows, Notification{
				ID:        id.String(),
				UserID:    userID,
				Kind:      notice.Kind,
				SubjectID: notice.SubjectID,
				Message:   message,
				CreatedAt: now,
			})
		}
		if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
			s.logger.Error("notifications service error",
				zap.String("operation", opNotify),
				zap.String("reason", "insert_failed"),
				zap.Error(err))
			return newServiceError(opNotify, "insert_failed", err)
		}
	}

	if s.publisher == nil {
		return nil
	}
	for _, userID := range recipients {
		if notice.EventType != "" {
			s.publisher.Publish(realtime.Message{
				UserID:    userID,
				EventType: notice.EventType,
				SubjectID: notice.SubjectID,
				Timestamp: now,
			})
		}
		if message != "" {
			s.publisher.Publish(realtime.Message{
				UserID:    userID,
				EventType: realtime.EventNotification,
				SubjectID: notice.SubjectID,
				Text:      message,
				Timestamp: now,
			})
		}
	}
	return nil
}

// List returns the newest inbox entries for userID.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if userID == "" {
		return nil, newServiceError(opList, "missing_user_id", errMissingUserID)
	}
	if limit <= 0 || limit > defaultListCap {
		limit = defaultListCap
	}
	var entries []Notification
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, newServiceError(opList, "query_failed", err)
	}
	return entries, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		return newServiceError(opMarkRead, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Notification{}).
			Where("id = ? AND user_id = ?", notificationID, userID).
			Count(&count).Error; err != nil {
			return newServiceError(opMarkRead, "query_failed", err)
		}
		if count == 0 {
			return newServiceError(opMarkRead, "not_found", ErrNotificationNotFound)
		}
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	if userID == "" {
		return newServiceError(opMarkAllRead, "missing_user_id", errMissingUserID)
	}
	if err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error; err != nil {
		return newServiceError(opMarkAllRead, "update_failed", err)
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, newServiceError(opUnreadCount, "query_failed", err)
	}
	return count, nil
}

func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
