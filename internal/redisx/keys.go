package redisx

import "time"

const (
	// Cached order status: order_status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup processed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Suppress repeated low-stock alerts: alert:lowstock:{product_id}
	KeyLowStockAlert = "alert:lowstock:%s"
)

var (
	TTLStatusCache   = 5 * time.Minute
	TTLDedup         = 48 * time.Hour
	TTLLowStockAlert = 6 * time.Hour
)
