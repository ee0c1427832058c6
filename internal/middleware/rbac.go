package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/response"
)

// RequireRole lets the request through when the principal has one of roles.
// Must run after RequireJWT.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	code := roleErrCode(roles)
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, code)
	}
}

func roleErrCode(roles []model.Role) response.ErrCode {
	switch {
	case len(roles) == 1 && roles[0] == model.RoleStudent:
		return response.ErrStudentAccessOnly
	case len(roles) == 1 && roles[0] == model.RoleAdmin:
		return response.ErrAdminAccessOnly
	default:
		return response.ErrStaffAccessOnly
	}
}
