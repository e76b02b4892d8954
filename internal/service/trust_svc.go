package service

import "github.com/Nueylo/smartroad-inspector-ioqtoe/internal/model"

// Vote weights per role.
const (
	WeightCitizen  = 1
	WeightApproved = 5
	WeightAdmin    = 10
)

type TrustService struct{}

func NewTrustService() *TrustService {
	return &TrustService{}
}

// WeightFor returns the trust weight of a role. Unknown roles get the
// lowest weight.
func (s *TrustService) WeightFor(role model.Role) int {
	switch role {
	case model.RoleAdmin:
		return WeightAdmin
	case model.RoleApproved:
		return WeightApproved
	default:
		return WeightCitizen
	}
}

// EffectiveWeight is the weight a user contributes to a report score.
// The stored role is authoritative over any stored weight.
func (s *TrustService) EffectiveWeight(user *model.User) int {
	if user == nil {
		return WeightCitizen
	}
	return s.WeightFor(model.ParseRole(string(user.Role)))
}
