// Package activitylog is the append-only audit trail of logins, logouts,
// device limit rejections and forced logouts.
//
// Entries are never updated. Login entries carrying coordinates are the
// history the impossible travel check compares against:
//
//	prev, err := logs.LatestLoginWithCoordinates(ctx, userID, now.Add(-30*time.Minute), now)
//	if errors.Is(err, activitylog.ErrNotFound) {
//		// no recent login to compare with
//	}
//
// The admin listing takes a typed Filter:
//
//	page, err := logs.List(ctx, activitylog.Filter{
//		Search:         "10.1.",
//		Action:         activitylog.ActionLogin,
//		SuspiciousOnly: true,
//		Page:           2,
//	}.Normalize())
package activitylog
