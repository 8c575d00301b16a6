package internal

// AttachmentType classifies what an uploaded attachment points at.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentAudio AttachmentType = "audio"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// User identifies a room member as the server names it.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttachmentRef is the remote reference returned by the upload endpoint.
// It is produced only by the uploader and travels inside a pending message
// until the server acknowledges the send.
type AttachmentRef struct {
	URL  string         `json:"url"`
	Type AttachmentType `json:"type"`
}

// RoomParams binds a display identity to a room. Immutable for the
// lifetime of one connection; changing either field means leave and rejoin.
type RoomParams struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

const (
	MessageChat   = "chat"
	MessageSystem = "system"
)

// Message is one entry of the room history. Ordering is assigned by the
// server; the client appends in arrival order and never reorders.
type Message struct {
	User      User           `json:"user"`
	Body      string         `json:"message"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Type      string         `json:"type"`
	File      *AttachmentRef `json:"file,omitempty"`
}

// System reports whether the message is a server-generated notice.
func (m Message) System() bool {
	return m.Type == MessageSystem
}
