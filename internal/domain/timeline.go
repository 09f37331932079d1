package domain

import "time"

// TimelineEvent — запись истории заказа: кто и какой операцией перевёл заказ в Status.
// У события оформления Op и From пустые.
type TimelineEvent struct {
	OrderID  string
	Op       OrderOp
	From     OrderStatus
	Status   OrderStatus
	ActorID  string
	Reason   string
	Occurred time.Time
}

// NewPlacedEvent фиксирует оформление заказа покупателем.
func NewPlacedEvent(order Order) TimelineEvent {
	return TimelineEvent{
		OrderID:  order.ID,
		Status:   order.Status,
		ActorID:  order.UserID,
		Occurred: order.CreatedAt,
	}
}

// NewTransitionEvent фиксирует применённый переход заказа.
func NewTransitionEvent(cmd OrderCommand, from OrderStatus, t Transition, now time.Time) TimelineEvent {
	return TimelineEvent{
		OrderID:  cmd.OrderID,
		Op:       t.Op,
		From:     from,
		Status:   t.To,
		ActorID:  cmd.ActorID,
		Reason:   cmd.Reason,
		Occurred: now,
	}
}
