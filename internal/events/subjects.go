package events

const (
	StreamName   = "FUNNEL_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectAssignmentCreated(id string) string   { return "fieldops.assignment." + id + ".created" }
func SubjectAssignmentOffered(id string) string   { return "fieldops.assignment." + id + ".offered" }
func SubjectAssignmentAccepted(id string) string  { return "fieldops.assignment." + id + ".accepted" }
func SubjectAssignmentRefused(id string) string   { return "fieldops.assignment." + id + ".refused" }
func SubjectAssignmentExpired(id string) string   { return "fieldops.assignment." + id + ".expired" }
func SubjectAssignmentCancelled(id string) string { return "fieldops.assignment." + id + ".cancelled" }

func SubjectOrderRanked(orderID string) string    { return "fieldops.order." + orderID + ".ranked" }
func SubjectOrderUnmatched(orderID string) string { return "fieldops.order." + orderID + ".unmatched" }
