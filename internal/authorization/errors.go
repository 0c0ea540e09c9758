package authorization

import "github.com/smallbiznis/crmbilling/internal/fault"

var (
	ErrInvalidActor   = fault.Unauthenticated("invalid_actor")
	ErrInvalidRole    = fault.Unauthenticated("invalid_role")
	ErrInvalidCompany = fault.Unauthenticated("invalid_actor_company")
	ErrInvalidObject  = fault.Validation("invalid_object")
	ErrInvalidAction  = fault.Validation("invalid_action")
	ErrForbidden      = fault.Forbidden("forbidden")
)
