package audit

import "github.com/perfcycle/pms-backend/pkg/enums"

// DefaultTopic receives events whose domain is not recognized. Resolution
// must never fail: an error here would abort the caller's business
// transaction over a routing concern.
const DefaultTopic = "pms.audit.events"

// ResolveTopic maps an audit domain to its destination topic. Pure and
// total; unknown domains fall back to DefaultTopic.
func ResolveTopic(domain enums.AuditDomain) string {
	switch domain {
	case enums.DomainGoal:
		return "pms.goal.events"
	case enums.DomainReview:
		return "pms.review.events"
	case enums.DomainRating:
		return "pms.rating.events"
	case enums.DomainReviewCycle:
		return "pms.review_cycle.events"
	case enums.DomainUser:
		return "pms.user.events"
	default:
		return DefaultTopic
	}
}
