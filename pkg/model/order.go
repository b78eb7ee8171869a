package model

import (
	"time"
)

const (
	ResourceTypeInternalOrder = "internal-order"
	ResourceTypeCustomerOrder = "customer-order"
)

type OrderItem struct {
	SKU      string `json:"sku" bson:"sku" validate:"required,min=1,max=64"`
	Name     string `json:"name" bson:"name" validate:"required,min=1,max=200"`
	Quantity int    `json:"quantity" bson:"quantity" validate:"required,min=1,max=10000"`
}

type Order struct {
	ID           string      `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	OrderNumber  string      `json:"order_number" bson:"order_number" validate:"required,min=3,max=40"`
	Kind         string      `json:"kind" bson:"kind" validate:"required,oneof=internal-order customer-order"`
	CustomerName string      `json:"customer_name,omitempty" bson:"customer_name,omitempty" validate:"omitempty,min=2,max=200"`
	Items        []OrderItem `json:"items" bson:"items" validate:"required,min=1,max=100,dive"`
	Status       string      `json:"status" bson:"status" validate:"required,oneof=draft confirmed in_production done cancelled"`
	Notes        string      `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=2000"`
	CreatedAt    time.Time   `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt    time.Time   `json:"updated_at" bson:"updated_at" validate:"omitempty"`
	DeletedAt    *time.Time  `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

type OrderUpdate struct {
	CustomerName string       `json:"customer_name,omitempty" validate:"omitempty,min=2,max=200"`
	Items        *[]OrderItem `json:"items,omitempty" validate:"omitempty,min=1,max=100,dive"`
	Status       string       `json:"status,omitempty" validate:"omitempty,oneof=draft confirmed in_production done cancelled"`
	Notes        *string      `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ResourceType maps an order kind to the lock namespace it is locked under,
// keeping internal and customer order ids from colliding.
func (o *Order) ResourceType() string {
	if o.Kind == ResourceTypeCustomerOrder {
		return ResourceTypeCustomerOrder
	}
	return ResourceTypeInternalOrder
}
