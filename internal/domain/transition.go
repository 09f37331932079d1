package domain

// OrderOp — операция над заказом после оформления.
type OrderOp string

const (
	OrderOpConfirm        OrderOp = "CONFIRM"
	OrderOpShip           OrderOp = "SHIP"
	OrderOpDeliver        OrderOp = "DELIVER"
	OrderOpCancel         OrderOp = "CANCEL"
	OrderOpRequestReturn  OrderOp = "RETURN_REQUEST"
	OrderOpApproveReturn  OrderOp = "APPROVE_RETURN"
	OrderOpCompleteReturn OrderOp = "COMPLETE_RETURN"
)

// Effect — побочный эффект перехода, который применяет consumer.
type Effect string

const (
	EffectNone           Effect = "none"
	EffectDeductStock    Effect = "deduct_stock"
	EffectRestock        Effect = "restock"
	EffectRecordPurchase Effect = "record_purchase"
)

// Role определяет, кто вправе запросить переход.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Transition описывает одно ребро конечного автомата заказа.
type Transition struct {
	Op     OrderOp
	From   []OrderStatus
	To     OrderStatus
	Effect Effect
	Role   Role
}

// transitions — полная таблица допустимых переходов; всё, чего нет в таблице, запрещено.
// DELIVER намеренно не возвращает товар на склад.
var transitions = map[OrderOp]Transition{
	OrderOpConfirm: {
		Op: OrderOpConfirm, From: []OrderStatus{OrderStatusPending},
		To: OrderStatusConfirmed, Effect: EffectDeductStock, Role: RoleAdmin,
	},
	// Отмена возвращает позиции на склад из любого исходного статуса, включая PENDING.
	OrderOpCancel: {
		Op: OrderOpCancel, From: []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped},
		To: OrderStatusCancelled, Effect: EffectRestock, Role: RoleOwner,
	},
	OrderOpShip: {
		Op: OrderOpShip, From: []OrderStatus{OrderStatusConfirmed},
		To: OrderStatusShipped, Effect: EffectNone, Role: RoleAdmin,
	},
	OrderOpDeliver: {
		Op: OrderOpDeliver, From: []OrderStatus{OrderStatusShipped},
		To: OrderStatusDelivered, Effect: EffectRecordPurchase, Role: RoleAdmin,
	},
	OrderOpRequestReturn: {
		Op: OrderOpRequestReturn, From: []OrderStatus{OrderStatusDelivered},
		To: OrderStatusReturnRequested, Effect: EffectNone, Role: RoleOwner,
	},
	OrderOpApproveReturn: {
		Op: OrderOpApproveReturn, From: []OrderStatus{OrderStatusReturnRequested},
		To: OrderStatusReturnApproved, Effect: EffectNone, Role: RoleAdmin,
	},
	OrderOpCompleteReturn: {
		Op: OrderOpCompleteReturn, From: []OrderStatus{OrderStatusReturnApproved},
		To: OrderStatusReturned, Effect: EffectRestock, Role: RoleAdmin,
	},
}

// LookupTransition возвращает ребро для операции.
func LookupTransition(op OrderOp) (Transition, bool) {
	t, ok := transitions[op]
	return t, ok
}

// Transitions возвращает копию таблицы переходов.
func Transitions() []Transition {
	out := make([]Transition, 0, len(transitions))
	for _, t := range transitions {
		out = append(out, t)
	}
	return out
}

// Allows проверяет, допустим ли переход из статуса from.
func (t Transition) Allows(from OrderStatus) bool {
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// PlanTransition проверяет операцию против текущего статуса заказа.
func PlanTransition(order Order, op OrderOp) (Transition, error) {
	t, ok := LookupTransition(op)
	if !ok {
		return Transition{}, ErrUnknownOrderOp
	}
	if !t.Allows(order.Status) {
		return Transition{}, &IllegalTransitionError{OrderID: order.ID, From: order.Status, To: t.To}
	}
	return t, nil
}
