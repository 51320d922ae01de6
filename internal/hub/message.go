package hub

import "github.com/ensui-dev/MusicCompanionWidget/internal/source"

// Message is the wire envelope pushed to observers. Data is nil when
// nothing is playing; an adapter failure keeps its snapshot so the error
// string can be surfaced by observers that want to distinguish the two.
type Message struct {
	Type string           `json:"type"`
	Data *source.Snapshot `json:"data"`
}

// MessageTypeTrack is the only message type currently on the wire.
const MessageTypeTrack = "track"

// TrackMessage wraps a snapshot in the wire envelope. Progress is clamped
// here so observers never see progress past a known duration.
func TrackMessage(snap source.Snapshot) Message {
	if snap.Title == "" && snap.Error == "" {
		return Message{Type: MessageTypeTrack}
	}
	s := snap.Clamped()
	return Message{Type: MessageTypeTrack, Data: &s}
}
