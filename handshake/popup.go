package handshake

// Popup window geometry shared by every provider flow.
const (
	PopupName   = "calendar-oauth"
	PopupWidth  = 500
	PopupHeight = 600
)

// Popup is an open consent window. Closed reports whether the user has
// dismissed it; the flow polls it because close events do not cross the
// window boundary.
type Popup interface {
	Closed() bool
	Close() error
}

// Opener creates popup windows. A blocked popup surfaces as a nil Popup or
// an error, and the flow must fail fast without registering any listener.
type Opener interface {
	Open(url, name string, width, height int) (Popup, error)
}
