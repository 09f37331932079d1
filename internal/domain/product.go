package domain

import (
	"fmt"
	"time"
)

// Product — товар каталога. Quantity никогда не опускается ниже нуля.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	Quantity   int64
	UpdatedAt  time.Time
}

// MaxCartLineQty ограничивает количество одного товара в корзине.
const MaxCartLineQty int32 = 10_000

// CartItem — позиция корзины: товар и желаемое количество.
type CartItem struct {
	ProductID string `json:"productId"`
	Qty       int32  `json:"qty"`
}

// Cart — корзина пользователя.
type Cart struct {
	UserID    string     `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Empty сообщает, что в корзине нет позиций.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Set выставляет количество товара; qty <= 0 удаляет позицию.
func (c *Cart) Set(productID string, qty int32) {
	for i, item := range c.Items {
		if item.ProductID != productID {
			continue
		}
		if qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
		c.Items[i].Qty = qty
		return
	}
	if qty > 0 {
		c.Items = append(c.Items, CartItem{ProductID: productID, Qty: qty})
	}
}

// Add увеличивает количество товара в корзине. Сумма сверх MaxCartLineQty
// отклоняется с ErrQtyInvalid, корзина при этом не меняется.
func (c *Cart) Add(productID string, qty int32) error {
	idx := -1
	var current int64
	for i, item := range c.Items {
		if item.ProductID == productID {
			idx, current = i, int64(item.Qty)
			break
		}
	}

	total := current + int64(qty)
	if qty <= 0 || total > int64(MaxCartLineQty) {
		return fmt.Errorf("%w: %s would hold %d, limit %d", ErrQtyInvalid, productID, total, MaxCartLineQty)
	}
	if idx < 0 {
		c.Items = append(c.Items, CartItem{ProductID: productID, Qty: qty})
		return nil
	}
	c.Items[idx].Qty = int32(total)
	return nil
}

// CartLine — позиция корзины с ценой из каталога.
type CartLine struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"priceMinor"`
	TotalMinor int64  `json:"totalMinor"`
}

// CartSnapshot — корзина, оценённая по текущим ценам каталога.
type CartSnapshot struct {
	UserID     string     `json:"userId"`
	Lines      []CartLine `json:"lines"`
	TotalMinor int64      `json:"totalMinor"`
}
