package sync

// sallaToLocalStatus maps Salla order status slugs onto the local sales
// order vocabulary.
var sallaToLocalStatus = map[string]string{
	"pending":          "draft",
	"pending_payment":  "draft",
	"payment_pending":  "draft",
	"under_review":     "draft",
	"pending_shipment": "to_deliver",
	"in_progress":      "to_deliver",
	"in_transit":       "to_deliver",
	"shipped":          "to_bill",
	"delivered":        "completed",
	"completed":        "completed",
	"cancelled":        "cancelled",
	"canceled":         "cancelled",
	"refunded":         "cancelled",
	"restored":         "draft",
	"restoring":        "draft",
	"on_hold":          "on_hold",
}

// LocalOrderStatus maps a Salla status slug to the local status code,
// defaulting to draft for slugs introduced after this table was written.
func LocalOrderStatus(slug string) string {
	if local, ok := sallaToLocalStatus[slug]; ok {
		return local
	}
	return "draft"
}

// IsTerminalStatus reports whether a Salla status slug means the order can
// no longer change.
func IsTerminalStatus(slug string) bool {
	switch slug {
	case "completed", "delivered", "cancelled", "canceled", "refunded":
		return true
	default:
		return false
	}
}
