package params

import (
	"fmt"

	"github.com/rgehrsitz/opcap/internal/domain"
)

type transition struct {
	from  domain.Status
	to    domain.Status
	roles []domain.Role
}

// transitions is the complete lifecycle; any move not listed is denied
var transitions = []transition{
	{domain.StatusDraft, domain.StatusUnderReview, []domain.Role{domain.RoleMaker}},
	{domain.StatusUnderReview, domain.StatusApproved, []domain.Role{domain.RoleApprover}},
	{domain.StatusUnderReview, domain.StatusRejected, []domain.Role{domain.RoleChecker, domain.RoleApprover}},
	{domain.StatusApproved, domain.StatusActive, []domain.Role{domain.RoleApprover, domain.RoleSystem}},
	{domain.StatusActive, domain.StatusSuperseded, []domain.Role{domain.RoleSystem}},
}

// CanTransition reports whether role may move a set from one status to another
func CanTransition(from, to domain.Status, role domain.Role) bool {
	for _, t := range transitions {
		if t.from != from || t.to != to {
			continue
		}
		for _, r := range t.roles {
			if r == role {
				return true
			}
		}
	}
	return false
}

func checkTransition(set *domain.ParameterSet, to domain.Status, role domain.Role) error {
	if !CanTransition(set.Status, to, role) {
		return fmt.Errorf("%w: %s %s -> %s as %s",
			domain.ErrTransitionDenied, set.VersionID, set.Status, to, role)
	}
	return nil
}
