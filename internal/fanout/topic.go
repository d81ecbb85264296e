package fanout

import (
	"github.com/mbeoliero/unichat/internal/entity"
)

type topicKind uint8

const (
	topicMessages topicKind = iota + 1
	topicConversations
	topicPresence
)

func (k topicKind) String() string {
	switch k {
	case topicMessages:
		return "conv"
	case topicConversations:
		return "user"
	case topicPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// topic identifies one live query: the messages of a conversation,
// the conversation list of a user or the presence of a user.
type topic struct {
	kind topicKind
	id   string
}

func (t topic) String() string {
	return t.kind.String() + ":" + t.id
}

// topicsFor lists the live queries whose result may have changed
func topicsFor(change entity.Change) []topic {
	var topics []topic
	switch change.Kind {
	case entity.ChangeMessage, entity.ChangeRead, entity.ChangeConversationDeleted:
		if change.ConversationId != "" {
			topics = append(topics, topic{kind: topicMessages, id: change.ConversationId})
		}
		for _, uid := range change.UserIds {
			topics = append(topics, topic{kind: topicConversations, id: uid})
		}
	case entity.ChangeConversation:
		for _, uid := range change.UserIds {
			topics = append(topics, topic{kind: topicConversations, id: uid})
		}
	case entity.ChangePresence:
		for _, uid := range change.UserIds {
			topics = append(topics, topic{kind: topicPresence, id: uid})
		}
	}
	return topics
}
