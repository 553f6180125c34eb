package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-bids-backend/pkg/models"
)

// LogCaseHistory inserts an audit record into case_histories.
// Used to track status changes and important actions on a case post.
// Callers outside a transaction may ignore the error (best-effort logging);
// inside one it should abort the transaction.
func LogCaseHistory(
	ctx context.Context,
	db *gorm.DB,
	caseID, actorID uuid.UUID,
	action string,
	oldS, newS models.CaseStatus,
	reason string,
) error {
	return db.WithContext(ctx).Create(&models.CaseHistory{
		ID:        uuid.New(),
		CaseID:    caseID,
		ActorID:   actorID,
		Action:    action,
		OldStatus: oldS,
		NewStatus: newS,
		Reason:    reason,
		CreatedAt: time.Now(),
	}).Error
}
