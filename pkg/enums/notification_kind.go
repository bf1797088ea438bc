package enums

// NotificationKind labels in-app notifications so clients can render
// and route them. Delivery is best-effort polling.
type NotificationKind string

const (
	NotificationLikeReceived    NotificationKind = "like_received"
	NotificationMatchFormed     NotificationKind = "match_formed"
	NotificationJoinRequested   NotificationKind = "join_requested"
	NotificationRequestApproved NotificationKind = "request_approved"
	NotificationRequestRejected NotificationKind = "request_rejected"
	NotificationMemberRemoved   NotificationKind = "member_removed"
	NotificationTeamDisbanded   NotificationKind = "team_disbanded"
)

func (k NotificationKind) IsValid() bool {
	switch k {
	case NotificationLikeReceived, NotificationMatchFormed,
		NotificationJoinRequested, NotificationRequestApproved,
		NotificationRequestRejected, NotificationMemberRemoved,
		NotificationTeamDisbanded:
		return true
	}
	return false
}
