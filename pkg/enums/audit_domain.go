package enums

import "fmt"

// AuditDomain identifies which part of the system raised an audit event.
type AuditDomain string

const (
	DomainGoal        AuditDomain = "goal"
	DomainReview      AuditDomain = "review"
	DomainRating      AuditDomain = "rating"
	DomainReviewCycle AuditDomain = "review_cycle"
	DomainUser        AuditDomain = "user"
)

var validAuditDomains = []AuditDomain{
	DomainGoal,
	DomainReview,
	DomainRating,
	DomainReviewCycle,
	DomainUser,
}

// IsValid reports whether the value matches a known audit domain.
func (d AuditDomain) IsValid() bool {
	for _, candidate := range validAuditDomains {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseAuditDomain converts raw input into AuditDomain.
func ParseAuditDomain(value string) (AuditDomain, error) {
	for _, candidate := range validAuditDomains {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit domain %q", value)
}
