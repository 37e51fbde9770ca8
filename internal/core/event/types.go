package event

// Resized is emitted after the window surface changed size.
type Resized struct {
	Width  int
	Height int
}

// CloseRequested is emitted when the native surface asks to close.
type CloseRequested struct{}

// Key is emitted for every key transition polled from the surface.
type Key struct {
	Code string
	Down bool
}

// ModuleAdded is emitted when a module is registered after construction.
type ModuleAdded struct {
	Name  string
	Index int
}

// PhysicsReset is emitted after the physics world was replaced.
// Body handles taken before the reset are invalid from this point on.
type PhysicsReset struct {
	Backend string
	Bodies  int
}
