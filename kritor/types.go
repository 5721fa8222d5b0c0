package kritor

import (
	"strconv"
	"strings"
)

// Scene identifies the kind of conversation a Contact refers to.
type Scene int32

const (
	SceneUnspecified       Scene = 0
	SceneGroup             Scene = 1
	SceneFriend            Scene = 2
	SceneGuild             Scene = 3
	SceneStrangerFromGroup Scene = 10
	SceneNearby            Scene = 5
	SceneStranger          Scene = 9
)

func (s Scene) String() string {
	switch s {
	case SceneGroup:
		return "group"
	case SceneFriend:
		return "friend"
	case SceneGuild:
		return "guild"
	case SceneStrangerFromGroup:
		return "stranger_from_group"
	case SceneNearby:
		return "nearby"
	case SceneStranger:
		return "stranger"
	default:
		return "unspecified"
	}
}

// Contact addresses a conversation. For group scenes Peer is the group id;
// for friend scenes it is the peer's uid. SubPeer is used by guild channels
// and temporary sessions.
type Contact struct {
	Scene   Scene   `json:"scene"`
	Peer    string  `json:"peer"`
	SubPeer *string `json:"sub_peer,omitempty"`
}

// Sender identifies the account that caused an event.
type Sender struct {
	UID  string  `json:"uid"`
	UIN  *uint64 `json:"uin,omitempty"`
	Nick *string `json:"nick,omitempty"`
}

// DisplayID returns the numeric uin when known and the uid otherwise.
func (s Sender) DisplayID() string {
	if s.UIN != nil && *s.UIN != 0 {
		return strconv.FormatUint(*s.UIN, 10)
	}
	return s.UID
}

// Conversation pairs the Contact an event belongs to with its Sender.
type Conversation struct {
	Contact Contact `json:"contact"`
	Sender  Sender  `json:"sender"`
}

// ConversationKey is the comparable identity of a Conversation. Two events
// with equal keys belong to the same conversation for transaction purposes.
type ConversationKey struct {
	Scene   Scene
	Peer    string
	SubPeer string
	UID     string
	UIN     uint64
}

// Key derives the comparable identity of c. Absent optional fields compare
// equal to their zero values.
func (c Conversation) Key() ConversationKey {
	k := ConversationKey{
		Scene: c.Contact.Scene,
		Peer:  c.Contact.Peer,
		UID:   c.Sender.UID,
	}
	if c.Contact.SubPeer != nil {
		k.SubPeer = *c.Contact.SubPeer
	}
	if c.Sender.UIN != nil {
		k.UIN = *c.Sender.UIN
	}
	return k
}

func (k ConversationKey) String() string {
	var b strings.Builder
	b.WriteString(k.Scene.String())
	b.WriteByte(':')
	b.WriteString(k.Peer)
	if k.SubPeer != "" {
		b.WriteByte('/')
		b.WriteString(k.SubPeer)
	}
	b.WriteByte('@')
	if k.UID != "" {
		b.WriteString(k.UID)
	} else {
		b.WriteString(strconv.FormatUint(k.UIN, 10))
	}
	return b.String()
}

// Ptr returns a pointer to v. It keeps optional-field literals short.
func Ptr[T any](v T) *T { return &v }
