package domain

import (
	"context"
	"time"
)

// Topic — логический топик конвейера команд; по одному на вид агрегата.
type Topic string

const (
	TopicCart     Topic = "storefront.cart"
	TopicOrder    Topic = "storefront.order"
	TopicProduct  Topic = "storefront.product"
	TopicReview   Topic = "storefront.review"
	TopicWishlist Topic = "storefront.wishlist"
	TopicAddress  Topic = "storefront.address"
)

// CommandKind — тег варианта команды в конверте.
type CommandKind string

const (
	CommandKindOrder CommandKind = "order"
	CommandKindCart  CommandKind = "cart"
)

// Command — асинхронная команда изменения состояния (закрытое объединение).
// Новые варианты добавляются вместе с методом в CommandVisitor,
// поэтому все обработчики обязаны их поддержать, иначе код не соберётся.
type Command interface {
	Kind() CommandKind
	Topic() Topic
	// Key — ключ партиционирования; порядок гарантируется только в пределах ключа.
	Key() string
	Accept(ctx context.Context, v CommandVisitor) error
}

// CommandVisitor обрабатывает каждый вариант Command.
type CommandVisitor interface {
	VisitOrder(ctx context.Context, cmd OrderCommand) error
	VisitCart(ctx context.Context, cmd CartCommand) error
}

// OrderCommand — запрос перехода заказа, исполняемый consumer'ом топика заказов.
type OrderCommand struct {
	Op          OrderOp   `json:"op"`
	OrderID     string    `json:"orderId"`
	ActorID     string    `json:"actorId"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

func (OrderCommand) Kind() CommandKind { return CommandKindOrder }
func (OrderCommand) Topic() Topic      { return TopicOrder }
func (c OrderCommand) Key() string     { return c.OrderID }

func (c OrderCommand) Accept(ctx context.Context, v CommandVisitor) error {
	return v.VisitOrder(ctx, c)
}

// CartOp — операция над корзиной.
type CartOp string

const (
	CartOpAdd    CartOp = "ADD"
	CartOpUpdate CartOp = "UPDATE"
	CartOpRemove CartOp = "REMOVE"
	CartOpClear  CartOp = "CLEAR"
)

// CartCommand — изменение корзины пользователя.
type CartCommand struct {
	Op        CartOp `json:"op"`
	UserID    string `json:"userId"`
	ProductID string `json:"productId,omitempty"`
	Qty       int32  `json:"qty,omitempty"`
}

func (CartCommand) Kind() CommandKind { return CommandKindCart }
func (CartCommand) Topic() Topic      { return TopicCart }
func (c CartCommand) Key() string     { return c.UserID }

func (c CartCommand) Accept(ctx context.Context, v CommandVisitor) error {
	return v.VisitCart(ctx, c)
}

var (
	_ Command = OrderCommand{}
	_ Command = CartCommand{}
)
