// Package middleware provides HTTP middleware for the shell API.
//
// Features:
//   - CORS: gin-contrib/cors with origins taken from process config
//   - Rate limiting: per-client and global token buckets (x/time/rate)
//   - Request log: X-Request-ID propagation and one zap entry per request
//
// Per-client limiters are dropped after IdleTTL without traffic.
package middleware
