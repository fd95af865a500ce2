package models

// Lifecycle events accepted by NextStatus.
const (
	EventPaymentCaptured = "payment_captured"
	EventCancel          = "cancel"
	EventCheckIn         = "check_in"
	EventCheckOut        = "check_out"
	EventNoShow          = "no_show"
)

type transitionKey struct {
	from  string
	event string
}

var transitions = map[transitionKey]string{
	{StatusPending, EventPaymentCaptured}: StatusConfirmed,
	{StatusPending, EventCancel}:          StatusCancelled,
	{StatusConfirmed, EventCancel}:        StatusCancelled,
	{StatusConfirmed, EventCheckIn}:       StatusCheckedIn,
	{StatusConfirmed, EventNoShow}:        StatusNoShow,
	{StatusCheckedIn, EventCheckOut}:      StatusCheckedOut,
}

// NextStatus returns the status a booking moves to when event is applied in
// state from. ok is false for illegal transitions.
func NextStatus(from, event string) (to string, ok bool) {
	to, ok = transitions[transitionKey{from: from, event: event}]
	return to, ok
}

// ReleasesCapacity reports whether entering status gives rooms back.
func ReleasesCapacity(status string) bool {
	return status == StatusCancelled || status == StatusNoShow
}
