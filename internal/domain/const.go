package domain

const (
	RequesterIDCtxKey     = "com-requesterId"
	RequesterHandleCtxKey = "com-requesterHandle"
)

// ActivationThreshold is the minimum member count for a group to be active.
const ActivationThreshold = 3
