package rate

import (
	"net/http"
	"strconv"

	binance "github.com/adshao/go-binance/v2"

	"bookwatch/internal/metrics"
	"bookwatch/logger"
)

// RequestWeightLimit extracts the REQUEST_WEIGHT per minute limit from an
// exchangeInfo response.
func RequestWeightLimit(info *binance.ExchangeInfo) int64 {
	if info == nil {
		return 0
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit
		}
	}
	return 0
}

// ReportUsedWeight parses the used weight from Binance response headers and
// emits a used_weight gauge. When limit is known the remaining share is
// attached. It reports whether a usable header was found.
func ReportUsedWeight(log *logger.Log, header http.Header, symbol string, limit int64) (int64, bool) {
	if header == nil {
		return 0, false
	}
	for _, key := range []string{"X-MBX-USED-WEIGHT-1M", "X-MBX-USED-WEIGHT"} {
		value := header.Get(key)
		if value == "" {
			continue
		}
		used, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			if log != nil {
				log.WithComponent("binance_client").WithFields(logger.Fields{
					"header": key,
					"value":  value,
				}).WithError(err).Debug("failed to parse used weight header")
			}
			continue
		}

		fields := logger.Fields{"symbol": symbol}
		if limit > 0 {
			fields["limit"] = limit
			fields["remaining"] = limit - used
		}
		metrics.EmitMetric(log, "binance_client", "used_weight", used, "gauge", fields)
		return used, true
	}
	return 0, false
}
