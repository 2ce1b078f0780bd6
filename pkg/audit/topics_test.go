package audit

import (
	"testing"

	"github.com/perfcycle/pms-backend/pkg/enums"
)

func TestResolveTopicKnownDomains(t *testing.T) {
	cases := map[enums.AuditDomain]string{
		enums.DomainGoal:        "pms.goal.events",
		enums.DomainReview:      "pms.review.events",
		enums.DomainRating:      "pms.rating.events",
		enums.DomainReviewCycle: "pms.review_cycle.events",
		enums.DomainUser:        "pms.user.events",
	}
	for domain, want := range cases {
		if got := ResolveTopic(domain); got != want {
			t.Fatalf("ResolveTopic(%s) = %q, want %q", domain, got, want)
		}
	}
}

func TestResolveTopicUnknownFallsBack(t *testing.T) {
	if got := ResolveTopic(enums.AuditDomain("payroll")); got != DefaultTopic {
		t.Fatalf("unknown domain resolved to %q, want default", got)
	}
	if got := ResolveTopic(""); got != DefaultTopic {
		t.Fatalf("empty domain resolved to %q, want default", got)
	}
}
