package loadbalancer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// KeyExtractor derives the affinity key from a request, typically the
// conference id taken from the connection token. Returning "" falls back to
// client address hashing.
type KeyExtractor func(r *http.Request) string

// ConferenceAffinity issues signed affinity cookies so an upstream load
// balancer can pin every participant of a conference to the same gateway
// instance. Co-located participants get their updates fanned out locally
// instead of over the event bus.
type ConferenceAffinity struct {
	secretKey  []byte
	cookieName string
	maxAge     int
	extractKey KeyExtractor
}

// NewConferenceAffinity creates a new affinity manager
func NewConferenceAffinity(secretKey string, cookieName string, maxAge int, extractKey KeyExtractor) *ConferenceAffinity {
	return &ConferenceAffinity{
		secretKey:  []byte(secretKey),
		cookieName: cookieName,
		maxAge:     maxAge,
		extractKey: extractKey,
	}
}

// Middleware ensures every response carries a valid affinity cookie.
func (a *ConferenceAffinity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := a.AffinityKey(r)
		a.SetAffinityCookie(w, key)
		next.ServeHTTP(w, r)
	})
}

// AffinityKey gets or derives the affinity key for the request
func (a *ConferenceAffinity) AffinityKey(r *http.Request) string {
	if a.extractKey != nil {
		if key := a.extractKey(r); key != "" {
			return key
		}
	}

	// Reuse a previously issued cookie if its signature holds
	cookie, err := r.Cookie(a.cookieName)
	if err == nil && cookie.Value != "" {
		if a.validateCookie(cookie.Value) {
			return a.extractFromCookie(cookie.Value)
		}
	}

	return a.deriveKey(r)
}

// SetAffinityCookie sets the signed affinity cookie in the response
func (a *ConferenceAffinity) SetAffinityCookie(w http.ResponseWriter, key string) {
	signedValue := a.sign(key)
	cookie := &http.Cookie{
		Name:     a.cookieName,
		Value:    signedValue,
		Path:     "/",
		MaxAge:   a.maxAge,
		HttpOnly: true,
		Secure:   true, // Use HTTPS in production
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// deriveKey derives a stable key from the client address when no conference
// id is available
func (a *ConferenceAffinity) deriveKey(r *http.Request) string {
	ip := a.getClientIP(r)
	ua := r.Header.Get("User-Agent")

	data := fmt.Sprintf("%s:%s", ip, ua)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// sign signs an affinity key with HMAC
func (a *ConferenceAffinity) sign(key string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(key))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("%s.%s", key, signature)
}

// validateCookie validates the cookie signature
func (a *ConferenceAffinity) validateCookie(cookieValue string) bool {
	key, _, found := strings.Cut(cookieValue, ".")
	if !found {
		return false
	}

	expected := a.sign(key)
	return hmac.Equal([]byte(cookieValue), []byte(expected))
}

// extractFromCookie extracts the affinity key from a signed cookie
func (a *ConferenceAffinity) extractFromCookie(cookieValue string) string {
	key, _, found := strings.Cut(cookieValue, ".")
	if !found {
		return ""
	}
	return key
}

// getClientIP gets the client IP address from request
func (a *ConferenceAffinity) getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Fallback to RemoteAddr
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// ConsistentHash maps affinity keys onto gateway instances
type ConsistentHash struct {
	instances []string
}

// NewConsistentHash creates a new consistent hash
func NewConsistentHash(instances []string) *ConsistentHash {
	return &ConsistentHash{
		instances: instances,
	}
}

// GetInstance gets the instance for a given key using consistent hashing
func (ch *ConsistentHash) GetInstance(key string) string {
	if len(ch.instances) == 0 {
		return ""
	}

	hash := sha256.Sum256([]byte(key))
	hashValue := uint64(hash[0])<<56 | uint64(hash[1])<<48 | uint64(hash[2])<<40 | uint64(hash[3])<<32 |
		uint64(hash[4])<<24 | uint64(hash[5])<<16 | uint64(hash[6])<<8 | uint64(hash[7])

	index := int(hashValue % uint64(len(ch.instances)))
	return ch.instances[index]
}
