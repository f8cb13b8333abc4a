package approvals

import (
	"time"

	"github.com/shopspring/decimal"
)

// DemoItems returns the inbox an empty store is seeded with
func DemoItems() []ApprovalItem {
	day := func(d, h int) time.Time { return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC) }
	item := func(id, workflow, title, requester, dept, amount string, created time.Time) ApprovalItem {
		return ApprovalItem{
			ID:         id,
			Workflow:   workflow,
			Title:      title,
			Requester:  requester,
			Department: dept,
			Amount:     decimal.RequireFromString(amount),
			Currency:   "UGX",
			Status:     StatusPending,
			CreatedAt:  created,
			UpdatedAt:  created,
			Audit:      []AuditEntry{},
		}
	}

	return []ApprovalItem{
		item("APR-1001", "Travel Request", "Kampala to Nairobi client visit", "Grace Namuli", "Sales", "1850000", day(3, 9)),
		item("APR-1002", "Purchase Order", "Laptops for new analysts", "Peter Okello", "Finance", "12400000", day(4, 11)),
		item("APR-1003", "Budget Increase", "EV charging pilot extension", "Sarah Atim", "Operations", "25000000", day(5, 8)),
		item("APR-1004", "Travel Request", "Airport rides for board meeting", "Daniel Mugisha", "Executive", "420000", day(6, 14)),
		item("APR-1005", "Vendor Onboarding", "Add EVmart as stationery supplier", "Ruth Achieng", "Procurement", "0", day(7, 10)),
		item("APR-1006", "Purchase Order", "Office chairs, second floor", "Peter Okello", "Finance", "3150000.50", day(10, 16)),
	}
}
