package models

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
)

// Order is a row of the pedidos table. ProductName and PricePaid are a
// snapshot of the catalog entry at checkout time.
type Order struct {
	ID            int         `json:"id"`
	ProductID     string      `json:"producto_id"`
	ProductName   string      `json:"producto_nombre"`
	PricePaid     float64     `json:"precio_pagado"`
	SessionID     string      `json:"stripe_session_id"`
	Status        OrderStatus `json:"status"`
	CustomerEmail string      `json:"cliente_email,omitempty"`
	DownloadSent  bool        `json:"descarga_enviada"`
	CreatedAt     time.Time   `json:"creado_en"`
	UpdatedAt     time.Time   `json:"actualizado_en"`
}

type CheckoutRequest struct {
	ProductID string `json:"productId"`
}

type CheckoutResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type SessionStatus struct {
	Status    string `json:"status"`
	Email     string `json:"email,omitempty"`
	Completed bool   `json:"completed"`
}

type OrderList struct {
	Success bool    `json:"success"`
	Orders  []Order `json:"pedidos"`
}

type ProductSales struct {
	ProductID   string  `json:"producto_id"`
	ProductName string  `json:"producto_nombre"`
	Sales       int     `json:"ventas"`
	Revenue     float64 `json:"ingresos"`
}

type SalesSummary struct {
	TotalOrders int            `json:"total_pedidos"`
	Completed   int            `json:"completados"`
	Pending     int            `json:"pendientes"`
	Revenue     float64        `json:"ingresos"`
	ByProduct   []ProductSales `json:"por_producto"`
}

// FulfillmentMessage is published to the fulfillment queue when mail
// dispatch is delegated to fulfillment-service.
type FulfillmentMessage struct {
	MessageID     string    `json:"message_id"`
	OrderID       int       `json:"order_id"`
	SessionID     string    `json:"session_id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	PricePaid     float64   `json:"price_paid"`
	CustomerEmail string    `json:"customer_email"`
	CompletedAt   time.Time `json:"completed_at"`
}
