package wire

const (
	TagRequest  = "Request"
	TagResponse = "Response"
	TagDelete   = "Delete"
	TagError    = "Error"
)

// Message is one control message. Tag is the key it is wrapped under on the
// wire.
type Message interface {
	Tag() string
}

// RequestMsg announces a file the client is about to send.
type RequestMsg struct {
	ContentHash  string `json:"content_hash"`
	DeclaredSize uint64 `json:"declared_size"`
	Name         string `json:"name"`
	Directory    string `json:"directory"`
}

// ResponseMsg tells the client where to resume. SyncedSize equal to the declared
// size means there is nothing left to send.
type ResponseMsg struct {
	ContentHash string `json:"content_hash"`
	SyncedSize  uint64 `json:"synced_size"`
}

// DeleteMsg removes the caller's mapping(s) to ContentHash. Name and Directory
// pick a single path; without them every mapping the caller holds for the hash
// is removed. The server echoes a DeleteMsg carrying what remains of the blob.
type DeleteMsg struct {
	ContentHash string `json:"content_hash"`
	SyncedSize  uint64 `json:"synced_size"`
	Name        string `json:"name,omitempty"`
	Directory   string `json:"directory,omitempty"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}

func (RequestMsg) Tag() string  { return TagRequest }
func (ResponseMsg) Tag() string { return TagResponse }
func (DeleteMsg) Tag() string   { return TagDelete }
func (ErrorMsg) Tag() string    { return TagError }
