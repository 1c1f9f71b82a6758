package tasks

import (
	neturl "net/url"
	"strings"
)

// secretKeys are the variables bootgate itself hands to tasks with credentials.
var secretKeys = map[string]bool{
	"DB_PASSWORD":               true,
	"REDIS_PASSWORD":            true,
	"DJANGO_SUPERUSER_PASSWORD": true,
	"SECRET_KEY":                true,
}

// Plan-file tasks may carry their own; these suffixes catch the usual names.
var secretSuffixes = []string{"_PASSWORD", "_SECRET", "_TOKEN"}

const redactedValue = "[REDACTED]"

// SanitizeEnv returns a copy of env safe to log. Secret values are replaced
// and passwords embedded in URLs (CELERY_BROKER_URL, DATABASE_URL) are masked.
func SanitizeEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	result := make(map[string]string, len(env))
	for k, v := range env {
		switch {
		case isSecretKey(k):
			result[k] = redactedValue
		case strings.HasSuffix(strings.ToUpper(k), "_URL"):
			result[k] = redactURLPassword(v)
		default:
			result[k] = v
		}
	}
	return result
}

func isSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	if secretKeys[upper] {
		return true
	}
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func redactURLPassword(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil {
		return redactedValue
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	return u.Redacted()
}
