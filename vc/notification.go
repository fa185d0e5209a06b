package vc

// Notification is the tagged broadcast kind carried by a VC's notification
// bus event. Field casing on the wire (owned by the peer package) is
// camelCase.
type Notification string

const (
	NotificationPeerJoin Notification = "peerJoin"
	NotificationPeerLeave Notification = "peerLeave"
	NotificationLoading  Notification = "loading"
	NotificationPlaying  Notification = "playing"
	NotificationIdle     Notification = "idle"
)
