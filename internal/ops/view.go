package ops

import (
	"github.com/gin-gonic/gin"

	"contest-settlement/internal/domain"
)

func transferView(tr *domain.PayoutTransfer) gin.H {
	v := gin.H{
		"id":              tr.ID,
		"payout_job_id":   tr.PayoutJobID,
		"contest_id":      tr.ContestID,
		"user_id":         tr.UserID,
		"amount_cents":    tr.AmountCents,
		"status":          tr.Status,
		"attempt_count":   tr.AttemptCount,
		"max_attempts":    tr.MaxAttempts,
		"idempotency_key": tr.IdempotencyKey,
		"updated_at":      tr.UpdatedAt,
	}
	if tr.ProviderTransferID != nil {
		v["provider_transfer_id"] = *tr.ProviderTransferID
	}
	if tr.FailureReason != nil {
		v["failure_reason"] = *tr.FailureReason
	}
	return v
}
