package constants

import "time"

// Snapshot cache constants
const (
	// PersonCacheKeyPrefix prefixes every cached person snapshot key
	PersonCacheKeyPrefix = "person:"

	// DefaultSnapshotTTL is how long a cached snapshot may be served
	DefaultSnapshotTTL = time.Hour
)

// Analytics constants
const (
	// DefaultAncestorGenerations is used when a listing does not say how far up to go
	DefaultAncestorGenerations = 5

	// MaxAncestorGenerations caps user-supplied generation bounds
	MaxAncestorGenerations = 64
)

// Record constants
const (
	// SearchLimit is the maximum number of persons returned by a name search
	SearchLimit = 50

	// Privacy log actions
	PrivacyActionPublish   = "publish"
	PrivacyActionUnpublish = "unpublish"
)
