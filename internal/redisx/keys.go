package redisx

import "time"

const (
	// Session token -> principal id: session:{token}
	KeySession = "session:%s"

	// Credential hash -> principal id (stable across exchanges): cred:{sha256}
	KeyCredential = "cred:%s"

	// Feed event dedup per consumer group: feed:dedup:{group}:{event_id}
	KeyFeedDedup = "feed:dedup:%s:%s"

	// Latest derived metrics per principal: metrics:{namespace}
	KeyMetrics = "metrics:%s"
)

var (
	TTLSession = 24 * time.Hour
	TTLDedup   = 48 * time.Hour
	TTLMetrics = 5 * time.Minute
)
