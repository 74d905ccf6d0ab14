package tui

type ApplicationState int

const (
	StateLoading ApplicationState = iota
	StateBrowsing
	StateSearching
	StateError
)
