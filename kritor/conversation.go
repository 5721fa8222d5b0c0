package kritor

import "strconv"

// ConversationOf maps any event to the conversation replies should be routed
// to. It never panics: malformed events and variants without an addressable
// peer return ok == false.
func ConversationOf(e *Event) (Conversation, bool) {
	if !e.Valid() {
		return Conversation{}, false
	}
	switch e.Type {
	case EventMessage:
		return Conversation{Contact: e.Message.Contact, Sender: e.Message.Sender}, true
	case EventNotice:
		return noticeConversation(e.Notice)
	case EventRequest:
		return requestConversation(e.Request)
	}
	return Conversation{}, false
}

func friendConversation(uid string, uin uint64) Conversation {
	return Conversation{
		Contact: Contact{Scene: SceneFriend, Peer: uid},
		Sender:  Sender{UID: uid, UIN: Ptr(uin)},
	}
}

func groupConversation(groupID uint64, uid string, uin uint64) Conversation {
	return Conversation{
		Contact: Contact{Scene: SceneGroup, Peer: strconv.FormatUint(groupID, 10)},
		Sender:  Sender{UID: uid, UIN: Ptr(uin)},
	}
}

func noticeConversation(n *NoticeEvent) (Conversation, bool) {
	switch {
	case n.FriendPoke != nil:
		return friendConversation(n.FriendPoke.OperatorUID, n.FriendPoke.OperatorUIN), true
	case n.FriendRecall != nil:
		return friendConversation(n.FriendRecall.OperatorUID, n.FriendRecall.OperatorUIN), true
	case n.FriendFileUploaded != nil:
		return friendConversation(n.FriendFileUploaded.OperatorUID, n.FriendFileUploaded.OperatorUIN), true
	case n.GroupPoke != nil:
		p := n.GroupPoke
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupCardChanged != nil:
		p := n.GroupCardChanged
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupUniqueTitleChanged != nil:
		p := n.GroupUniqueTitleChanged
		return groupConversation(p.GroupID, "", p.Target), true
	case n.GroupEssenceChanged != nil:
		p := n.GroupEssenceChanged
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupRecall != nil:
		p := n.GroupRecall
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupMemberIncrease != nil:
		p := n.GroupMemberIncrease
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupMemberDecrease != nil:
		p := n.GroupMemberDecrease
		// the member who left is preferred; fall back to the operator
		if p.TargetUID != nil || p.TargetUIN != nil {
			var uid string
			var uin uint64
			if p.TargetUID != nil {
				uid = *p.TargetUID
			}
			if p.TargetUIN != nil {
				uin = *p.TargetUIN
			}
			return groupConversation(p.GroupID, uid, uin), true
		}
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupAdminChange != nil:
		p := n.GroupAdminChange
		return groupConversation(p.GroupID, p.TargetUID, p.TargetUIN), true
	case n.GroupMemberBan != nil:
		p := n.GroupMemberBan
		return groupConversation(p.GroupID, p.TargetUID, p.TargetUIN), true
	case n.GroupSignIn != nil:
		p := n.GroupSignIn
		return groupConversation(p.GroupID, p.TargetUID, p.TargetUIN), true
	case n.GroupWholeBan != nil:
		p := n.GroupWholeBan
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	case n.GroupFileUploaded != nil:
		p := n.GroupFileUploaded
		return groupConversation(p.GroupID, p.OperatorUID, p.OperatorUIN), true
	}
	return Conversation{}, false
}

func requestConversation(r *RequestEvent) (Conversation, bool) {
	switch {
	case r.FriendApply != nil:
		return friendConversation(r.FriendApply.ApplierUID, r.FriendApply.ApplierUIN), true
	case r.GroupApply != nil:
		p := r.GroupApply
		return groupConversation(p.GroupID, p.ApplierUID, p.ApplierUIN), true
	case r.InvitedJoinGroup != nil:
		p := r.InvitedJoinGroup
		return groupConversation(p.GroupID, p.InviterUID, p.InviterUIN), true
	}
	return Conversation{}, false
}
