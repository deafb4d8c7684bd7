package model

// ChildStatus is the cached workflow stage of a child.
type ChildStatus string

const (
	ChildAvailable      ChildStatus = "available"
	ChildPending        ChildStatus = "pending"
	ChildAccepted       ChildStatus = "accepted"
	ChildRejected       ChildStatus = "rejected"
	ChildGamesCompleted ChildStatus = "games_completed"
	ChildCompleted      ChildStatus = "completed"
)

// ChildStatuses lists every recognised child status. ChildRejected is only a
// transient outcome of a pending request; stored children never keep it.
var ChildStatuses = []ChildStatus{
	ChildAvailable,
	ChildPending,
	ChildAccepted,
	ChildRejected,
	ChildGamesCompleted,
	ChildCompleted,
}

func (s ChildStatus) Valid() bool {
	for _, v := range ChildStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// RequestStatus is the lifecycle of an assessment request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestRejected  RequestStatus = "rejected"
	RequestCompleted RequestStatus = "completed"
	RequestCancelled RequestStatus = "cancelled"
)

// Active requests are the ones still driving a child's workflow.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestAccepted
}
