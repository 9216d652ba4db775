// Package server is the HTTP pipeline of the dispatcher.
//
// Every inbound POST is treated as a webhook delivery and flows through an
// ordered middleware chain: request logging (which observes the final status
// even when an inner layer short-circuits), panic recovery, per-IP rate
// limiting, body materialization, and the HMAC signature gate. The core
// handler then parses the payload, runs the filter chain, reserves an
// admission slot, and hands the event to the build orchestrator.
//
// Responses on the webhook route are plain text: 200 for successful builds
// and legitimate no-ops, 400 for authentication failures and disallowed or
// unusable payloads, 429 when build capacity is exceeded, 500 for build
// failures. Process output never reaches a response; it may carry secrets
// and is only logged, redacted.
package server
