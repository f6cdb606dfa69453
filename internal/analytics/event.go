package analytics

import (
	"strings"
	"time"
)

// Event names understood by the clickstream pipeline.
const (
	EventPageView        = "page_view"
	EventViewHomepage    = "view_homepage"
	EventViewCategory    = "view_category"
	EventSearch          = "search_query"
	EventViewItem        = "view_item"
	EventAddToCart       = "add_to_cart"
	EventRemoveFromCart  = "remove_from_cart"
	EventViewCart        = "view_cart"
	EventBeginCheckout   = "begin_checkout"
	EventCheckoutStep    = "checkout_step"
	EventPurchase        = "purchase"
	EventCheckoutDropoff = "checkout_dropoff"
	EventSignUp          = "sign_up"
	EventSignIn          = "sign_in"
	EventSignOut         = "sign_out"
)

const (
	TrafficMobile  = "MOBILE"
	TrafficDesktop = "DESKTOP"
)

// Event is one clickstream event. Monetary metadata is held in cents and
// converted to dollars by the sinks.
type Event struct {
	EventID       string         `json:"event_id"`
	EventName     string         `json:"event_name"`
	SessionID     string         `json:"session_id"`
	EventTime     time.Time      `json:"event_time"`
	TrafficSource string         `json:"traffic_source"`
	Page          string         `json:"page,omitempty"`
	Referrer      string         `json:"referrer,omitempty"`
	Metadata      map[string]any `json:"event_metadata,omitempty"`
}

var mobileKeywords = []string{"mobile", "android", "iphone", "ipad", "ipod", "blackberry", "windows phone"}

// TrafficSource classifies a user agent string.
func TrafficSource(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, kw := range mobileKeywords {
		if strings.Contains(ua, kw) {
			return TrafficMobile
		}
	}
	return TrafficDesktop
}
