// Package smoke provides the HTTP client used to smoke-test the GalaCash API.
//
// The client runs one request at a time and pauses before each one so a run stays
// under the API's rate limits. Every response is recorded:
//   1. Stats - status and latency per category (stats.Recorder)
//   2. Hook  - a per-request callback used for the human report
//   3. Log   - a structured zap debug line carrying the X-Request-ID
//
// Non-2xx responses come back as *HTTPError after they have been recorded.
package smoke
