package util

import (
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/ariebrainware/educe-api/logger"
	"github.com/oschwald/geoip2-golang"
	cache "github.com/patrickmn/go-cache"
)

var (
	geoipDB        *geoip2.Reader
	geoipCache     *cache.Cache
	geoipCacheHits int64
	geoipCacheMiss int64
)

// InitGeoIP opens a GeoIP2/GeoLite2 .mmdb file and an in-memory lookup cache.
// With an empty path (and no GEOIP_DB_PATH) it is a no-op.
func InitGeoIP(dbPath string) error {
	if dbPath == "" {
		dbPath = os.Getenv("GEOIP_DB_PATH")
	}
	if dbPath == "" {
		return nil
	}

	r, err := geoip2.Open(dbPath)
	if err != nil {
		return err
	}
	geoipDB = r
	geoipCache = cache.New(24*time.Hour, time.Hour)
	return nil
}

// CloseGeoIP closes the GeoIP DB if opened.
func CloseGeoIP() {
	if geoipDB != nil {
		_ = geoipDB.Close()
		geoipDB = nil
	}
}

func skipLookup(ip net.IP) bool {
	return ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()
}

// GetIPLocation returns city and country name for the provided IP. Empty
// strings mean no lookup was possible.
func GetIPLocation(ip string) (string, string) {
	parsed := net.ParseIP(ip)
	if skipLookup(parsed) {
		return "", ""
	}

	if geoipCache != nil {
		if v, ok := geoipCache.Get(ip); ok {
			atomic.AddInt64(&geoipCacheHits, 1)
			if arr, ok := v.([2]string); ok {
				return arr[0], arr[1]
			}
		}
	}
	atomic.AddInt64(&geoipCacheMiss, 1)

	if geoipDB == nil {
		return "", ""
	}

	rec, err := geoipDB.City(parsed)
	if err != nil {
		logger.Log.WithError(err).WithField("ip", ip).Debug("geoip lookup failed")
		return "", ""
	}

	city := rec.City.Names["en"]
	country := rec.Country.Names["en"]
	if country == "" {
		country = rec.Country.IsoCode
	}

	if geoipCache != nil {
		geoipCache.Set(ip, [2]string{city, country}, cache.DefaultExpiration)
	}
	return city, country
}

// GetGeoIPCacheMetrics returns the cache hits and misses and current cache size.
func GetGeoIPCacheMetrics() (hits int64, misses int64, size int) {
	hits = atomic.LoadInt64(&geoipCacheHits)
	misses = atomic.LoadInt64(&geoipCacheMiss)
	if geoipCache != nil {
		return hits, misses, geoipCache.ItemCount()
	}
	return hits, misses, 0
}
