package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PackageStatusExpected  = "expected"
	PackageStatusWarehouse = "warehouse"
	PackageStatusShipped   = "shipped"
	PackageStatusDelivered = "delivered"
)

// PackageStatuses lists the pipeline in order.
var PackageStatuses = []string{
	PackageStatusExpected,
	PackageStatusWarehouse,
	PackageStatusShipped,
	PackageStatusDelivered,
}

// Package is a shipment travelling through the forwarding warehouse.
type Package struct {
	BaseModel
	UserID            uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	User              *User           `json:"user,omitempty"`
	TrackingNumber    string          `gorm:"index;not null" json:"tracking_number"`
	Carrier           string          `json:"carrier"`
	StoreName         string          `json:"store_name"`
	Description       string          `json:"description"`
	WeightKg          float64         `json:"weight_kg"`
	DeclaredValue     float64         `json:"declared_value"`
	WarehouseLocation string          `json:"warehouse_location"`
	Status            string          `gorm:"index;not null" json:"status"`
	ReceivedAt        *time.Time      `json:"received_at"`
	ShippedAt         *time.Time      `json:"shipped_at"`
	DeliveredAt       *time.Time      `json:"delivered_at"`
	Timeline          []TimelineEntry `gorm:"-" json:"timeline,omitempty"`
}
