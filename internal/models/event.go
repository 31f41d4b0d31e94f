package models

// Event names delivered over live connections. These are part of the wire
// contract with clients and with sibling server processes.
const (
	EventMessageCreated  = "message.created"
	EventMessageDeleted  = "message.deleted"
	EventMessageRestored = "message.restored"
	EventMessagesRead    = "messages.read"
	EventTypingUpdated   = "typing.updated"
	EventPresenceUpdated = "presence.updated"
	EventCallIncoming    = "call.incoming"
	EventCallAccepted    = "call.accepted"
	EventCallRejected    = "call.rejected"
	EventCallEnded       = "call.ended"
)

// Channel namespaces a live connection by the kind of traffic it carries.
type Channel string

const (
	ChannelMessaging Channel = "messaging"
	ChannelCalls     Channel = "calls"
	ChannelPresence  Channel = "presence"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelMessaging, ChannelCalls, ChannelPresence:
		return true
	}
	return false
}

// PresenceRoom is the global room every presence-channel connection may join
// to observe presence broadcasts.
const PresenceRoom = "presence:global"
