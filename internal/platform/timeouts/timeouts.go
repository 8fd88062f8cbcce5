// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// ProviderCall caps a single outbound model provider request.
const ProviderCall = 15 * time.Second

// ProviderRecovery is how long a failed provider stays out of rotation.
const ProviderRecovery = 5 * time.Minute

// SubscriberWrite bounds one frame write to a subscriber connection before
// the subscriber is dropped.
const SubscriberWrite = 2 * time.Second
