package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"xrepost/models"
)

type auditor struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
}

// record writes an audit event for the account. A failed write is logged and
// never interrupts the caller.
func (a auditor) record(ctx context.Context, userID int, level, message string) {
	if err := a.store.AppendAuditLog(ctx, userID, level, message); err != nil {
		a.logger.Error("audit log write failed", "account_id", userID, "level", level, "error", err)
	}
	if level == models.LevelError && a.notifier != nil {
		a.notifier.Notify(fmt.Sprintf("account %d: %s", userID, message))
	}
}
