package domain

// Account is the payload of a selected-account change.
type Account struct {
	Address string
}

// Preferences is the subset of user preferences read by detection.
type Preferences struct {
	UseTokenDetection bool
}

// SessionState is the payload of a keyring lock/unlock change.
type SessionState struct {
	IsUnlocked bool
}
