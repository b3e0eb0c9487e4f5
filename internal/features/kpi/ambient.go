package kpi

import (
	"time"

	"go-kpi/pkg/expression"
	"go-kpi/pkg/utils"
)

// AmbientContext is the fallback layer of template variables: who is
// asking and when. Range variables always take precedence over it.
func AmbientContext(claims *utils.UserClaims, now time.Time, zone *time.Location) expression.Context {
	if zone == nil {
		zone = time.UTC
	}
	ctx := expression.MapContext{}.
		Put("#Date", now.In(zone).Format("2006-01-02")).
		Put("#Now", now.UnixMilli())
	if claims != nil {
		ctx.Put("#UserID", claims.UserID).Put("#Roles", claims.Roles)
	}
	return ctx
}
