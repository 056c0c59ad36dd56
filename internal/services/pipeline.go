package services

import (
	"fmt"
	"time"

	"github.com/riwaai/riwa-pos-backend/internal/models"
)

// statusRank gives each status its position in the linear pipeline
// placed -> accepted -> preparing -> ready -> out_for_delivery -> completed.
// cancelled sits outside the line and is reachable from any non-terminal
// state.
var statusRank = map[string]int{
	models.StatusPlaced:         0,
	models.StatusAccepted:       1,
	models.StatusPreparing:      2,
	models.StatusReady:          3,
	models.StatusOutForDelivery: 4,
	models.StatusCompleted:      5,
}

// statusTimestamp declares, in one place, which timestamp field each status
// owns. preparing owns none.
var statusTimestamp = map[string]func(*models.OrderStatusUpdate, time.Time){
	models.StatusAccepted:       func(u *models.OrderStatusUpdate, t time.Time) { u.AcceptedAt = &t },
	models.StatusReady:          func(u *models.OrderStatusUpdate, t time.Time) { u.ReadyAt = &t },
	models.StatusOutForDelivery: func(u *models.OrderStatusUpdate, t time.Time) { u.DispatchedAt = &t },
	models.StatusCompleted:      func(u *models.OrderStatusUpdate, t time.Time) { u.CompletedAt = &t },
	models.StatusCancelled:      func(u *models.OrderStatusUpdate, t time.Time) { u.CancelledAt = &t },
}

// statusBySlot is statusRank inverted, used for backfill.
var statusBySlot = []string{
	models.StatusPlaced,
	models.StatusAccepted,
	models.StatusPreparing,
	models.StatusReady,
	models.StatusOutForDelivery,
	models.StatusCompleted,
}

// NormalizeStatus maps legacy inbound spellings onto the canonical set.
// Early order rows used "created" where the pipeline says "placed".
func NormalizeStatus(status string) string {
	if status == "created" {
		return models.StatusPlaced
	}
	return status
}

// IsValidStatus reports whether status is part of the pipeline.
func IsValidStatus(status string) bool {
	if status == models.StatusCancelled {
		return true
	}
	_, ok := statusRank[status]
	return ok
}

// IsForward reports whether target is strictly ahead of current in the
// linear pipeline. Used by webhook handlers to drop stale courier events
// instead of failing them.
func IsForward(current, target string) bool {
	currentRank, ok := statusRank[NormalizeStatus(current)]
	if !ok {
		return false
	}
	targetRank, ok := statusRank[NormalizeStatus(target)]
	if !ok {
		return false
	}
	return targetRank > currentRank
}

// alreadyStamped reports whether the order already carries the timestamp a
// given status owns, so backfill never overwrites an earlier recording.
func alreadyStamped(order *models.Order, status string) bool {
	switch status {
	case models.StatusAccepted:
		return order.AcceptedAt != nil
	case models.StatusReady:
		return order.ReadyAt != nil
	case models.StatusOutForDelivery:
		return order.DispatchedAt != nil
	case models.StatusCompleted:
		return order.CompletedAt != nil
	case models.StatusCancelled:
		return order.CancelledAt != nil
	}
	return true
}

// PlanTransition validates a requested transition against the pipeline rules
// and returns the fields to persist. The policy is permissive-with-backfill:
// any forward jump is legal (aggregator and courier webhooks routinely skip
// stages), and timestamps of skipped stages are backfilled with the
// transition time. Backward moves and transitions on terminal orders are
// rejected. The returned update has no side effects until persisted.
func PlanTransition(order *models.Order, target string, now time.Time) (*models.OrderStatusUpdate, error) {
	target = NormalizeStatus(target)
	if !IsValidStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if order.IsTerminal() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
	}

	update := &models.OrderStatusUpdate{Status: &target, UpdatedAt: now}

	if target == models.StatusCancelled {
		statusTimestamp[target](update, now)
		return update, nil
	}

	currentRank, ok := statusRank[NormalizeStatus(order.Status)]
	if !ok {
		return nil, fmt.Errorf("%w: order %s has unknown status %q", ErrInvalidTransition, order.ID, order.Status)
	}
	targetRank := statusRank[target]
	if targetRank <= currentRank {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}

	// Stamp the target and every skipped stage in between.
	for slot := currentRank + 1; slot <= targetRank; slot++ {
		status := statusBySlot[slot]
		if stamp, ok := statusTimestamp[status]; ok && !alreadyStamped(order, status) {
			stamp(update, now)
		}
	}
	return update, nil
}
