package domain

// Message represents a any message in a chat log (user or bot)
type Message struct {
	ID        MessageID
	SessionID SessionID
	Author    Role
	Text      string
	CreatedAt Timestamp

	// Processing marks a placeholder shown while a reply is in flight.
	// It is always replaced or removed once the call resolves.
	Processing bool

	Sources   []Source
	ImageURLs []string
	Location  *Coordinates

	// Translation state. Original is empty unless Text currently holds a
	// translation.
	Original     string
	TranslatedTo string
}

// IsFromBot reports whether the message was authored by the assistant.
func (m *Message) IsFromBot() bool {
	return m.Author == RoleBot
}

// Translated reports whether Text currently shows a translation.
func (m *Message) Translated() bool {
	return m.TranslatedTo != ""
}

// Session is one chat in a user's history.
type Session struct {
	ID        SessionID
	UserID    UserID
	CreatedAt Timestamp
	UpdatedAt Timestamp
	Title     string
}
