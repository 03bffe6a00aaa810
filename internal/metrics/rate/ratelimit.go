package rate

import (
	"net/http"
	"strings"
	"time"

	"bookwatch/internal/metrics"
	"bookwatch/logger"
)

// ReportRateLimitExceeded records a rate limit rejection from Binance.
func ReportRateLimitExceeded(log *logger.Log, symbol, endpoint string) {
	if log == nil {
		log = logger.GetLogger()
	}
	fields := logger.Fields{"symbol": symbol, "endpoint": endpoint}
	metrics.EmitMetric(log, "binance_client", "rate_limit_exceeded", int64(1), "counter", fields)
	log.WithComponent("binance_client").WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan records an IP ban. until is zero when Binance did not say how
// long the ban lasts.
func ReportIPBan(log *logger.Log, symbol, endpoint string, until time.Time) {
	if log == nil {
		log = logger.GetLogger()
	}
	fields := logger.Fields{"symbol": symbol, "endpoint": endpoint}
	metrics.EmitMetric(log, "binance_client", "ip_ban", int64(1), "counter", fields)
	entry := log.WithComponent("binance_client").WithFields(fields)
	if !until.IsZero() {
		entry = entry.WithFields(logger.Fields{"banned_until": until.Format(time.RFC3339)})
	}
	entry.Error("ip banned")
}

// detectLimit classifies a Binance rejection. 429 signals the request weight
// was exceeded and 418 an IP ban; the message wording is checked as well since
// proxies may rewrite the status.
func detectLimit(status int, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	ipBan = status == http.StatusTeapot || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
	rateLimit = !ipBan && (status == http.StatusTooManyRequests ||
		strings.Contains(lowerMsg, "too many requests") ||
		strings.Contains(lowerMsg, "rate limit"))
	return
}

// ReportLimit checks a rejected response for rate limit or IP ban signals and
// records the matching metric. It reports whether either was detected.
func ReportLimit(log *logger.Log, symbol, endpoint string, status int, msg string) bool {
	rateLimit, ipBan := detectLimit(status, msg)
	if ipBan {
		until, _ := BannedUntil(msg)
		ReportIPBan(log, symbol, endpoint, until)
	}
	if rateLimit {
		ReportRateLimitExceeded(log, symbol, endpoint)
	}
	return rateLimit || ipBan
}
