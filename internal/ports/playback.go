package ports

// PlaybackSource reports the playback position of the video being
// watched. Positions is closed when playback ends or the source goes
// away; the agent then tears down and waits for a fresh source.
type PlaybackSource interface {
	// Positions yields the current position in seconds. Delivery
	// frequency is source-defined; the agent applies its own throttle.
	Positions() <-chan float64

	// Pause suspends position advancement while the quiz overlay is up.
	Pause()

	// Resume continues playback after the overlay closes.
	Resume()

	Close() error
}
