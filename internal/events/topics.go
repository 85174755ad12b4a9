package events

const (
	TopicMessageCreated  = "message.created"
	TopicMessageState    = "message.state"
	TopicMessageAcked    = "message.acked"
	TopicMessageSent     = "message.sent"
	TopicMessageFailed   = "message.failed"
	TopicMessagesDeleted = "message.deleted"
	TopicMessageEdited   = "message.edited"
	TopicEditRolledBack  = "message.edit_rolled_back"
)

// MessageTopics lists every topic the sender publishes on.
var MessageTopics = []string{
	TopicMessageCreated,
	TopicMessageState,
	TopicMessageAcked,
	TopicMessageSent,
	TopicMessageFailed,
	TopicMessagesDeleted,
	TopicMessageEdited,
	TopicEditRolledBack,
}
