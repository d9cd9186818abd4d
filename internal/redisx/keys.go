package redisx

import "time"

const (
	// Session document: cart:session:{session_id} -> JSON
	KeyCartSession = "cart:session:%s"

	// Active session per owner: cart:owner:{owner_key} -> session_id
	KeyCartOwner = "cart:owner:%s"

	// Sessions that may hold stock, scored by expires_at (unix ms), scanned by the sweeper.
	KeyCartExpiry = "cart:expiry"

	// Order number counter.
	KeyOrderNumber = "seq:order_number"

	// Cached tracking projections, one hash field per caller proof: order_track:{order_number}
	KeyOrderTrack = "order_track:%s"

	// Checkout idempotency: idem:checkout:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Dedup event processing: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	// Settled sessions (converted, or expired with nothing held) are kept this long.
	TTLCartArchive = 7 * 24 * time.Hour

	TTLTrackCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLIdempotency = 24 * time.Hour
)
