package kritor

// EventType is the category an inbound event belongs to. Services register
// against one or more categories.
type EventType int32

const (
	EventMessage EventType = 1
	EventNotice  EventType = 2
	EventRequest EventType = 3
)

// EventTypes lists every category in dispatch order.
var EventTypes = []EventType{EventMessage, EventNotice, EventRequest}

func (t EventType) String() string {
	switch t {
	case EventMessage:
		return "message"
	case EventNotice:
		return "notice"
	case EventRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known categories.
func (t EventType) Valid() bool {
	return t == EventMessage || t == EventNotice || t == EventRequest
}

// Event is the envelope pushed by a core on the event stream. Exactly one of
// Message, Notice or Request is set, matching Type.
type Event struct {
	Type    EventType        `json:"type"`
	Message *PushMessageBody `json:"message,omitempty"`
	Notice  *NoticeEvent     `json:"notice,omitempty"`
	Request *RequestEvent    `json:"request,omitempty"`
}

// MessageEvent wraps m in an Event.
func MessageEvent(m *PushMessageBody) *Event { return &Event{Type: EventMessage, Message: m} }

// NoticeOf wraps n in an Event.
func NoticeOf(n *NoticeEvent) *Event { return &Event{Type: EventNotice, Notice: n} }

// RequestOf wraps r in an Event.
func RequestOf(r *RequestEvent) *Event { return &Event{Type: EventRequest, Request: r} }

// Valid reports whether the payload matching Type is present.
func (e *Event) Valid() bool {
	if e == nil {
		return false
	}
	switch e.Type {
	case EventMessage:
		return e.Message != nil
	case EventNotice:
		return e.Notice != nil
	case EventRequest:
		return e.Request != nil
	default:
		return false
	}
}

// PushMessageBody is an inbound chat message.
type PushMessageBody struct {
	Time       uint64   `json:"time"`
	MessageID  string   `json:"message_id"`
	MessageSeq uint64   `json:"message_seq"`
	Contact    Contact  `json:"contact"`
	Sender     Sender   `json:"sender"`
	Elements   Elements `json:"elements"`
}

// NoticeType discriminates NoticeEvent payloads.
type NoticeType int32

const (
	NoticeUnknown                       NoticeType = 0
	NoticeFriendPoke                    NoticeType = 1
	NoticeFriendRecall                  NoticeType = 2
	NoticeFriendFileUploaded            NoticeType = 3
	NoticeGroupPoke                     NoticeType = 20
	NoticeGroupCardChanged              NoticeType = 21
	NoticeGroupMemberUniqueTitleChanged NoticeType = 22
	NoticeGroupEssenceChanged           NoticeType = 23
	NoticeGroupRecall                   NoticeType = 24
	NoticeGroupMemberIncrease           NoticeType = 25
	NoticeGroupMemberDecrease           NoticeType = 26
	NoticeGroupAdminChange              NoticeType = 27
	NoticeGroupMemberBan                NoticeType = 28
	NoticeGroupSignIn                   NoticeType = 29
	NoticeGroupWholeBan                 NoticeType = 30
	NoticeGroupFileUploaded             NoticeType = 31
)

// NoticeEvent is an inbound notice. Exactly one payload pointer is set.
type NoticeEvent struct {
	Type     NoticeType `json:"type"`
	Time     uint64     `json:"time"`
	NoticeID string     `json:"notice_id"`

	FriendPoke               *FriendPokeNotice              `json:"friend_poke,omitempty"`
	FriendRecall             *FriendRecallNotice            `json:"friend_recall,omitempty"`
	FriendFileUploaded       *FriendFileUploadedNotice      `json:"friend_file_uploaded,omitempty"`
	GroupPoke                *GroupPokeNotice               `json:"group_poke,omitempty"`
	GroupCardChanged         *GroupCardChangedNotice        `json:"group_card_changed,omitempty"`
	GroupUniqueTitleChanged  *GroupUniqueTitleChangedNotice `json:"group_member_unique_title_changed,omitempty"`
	GroupEssenceChanged      *GroupEssenceMessageNotice     `json:"group_essence_changed,omitempty"`
	GroupRecall              *GroupRecallNotice             `json:"group_recall,omitempty"`
	GroupMemberIncrease      *GroupMemberIncreasedNotice    `json:"group_member_increase,omitempty"`
	GroupMemberDecrease      *GroupMemberDecreasedNotice    `json:"group_member_decrease,omitempty"`
	GroupAdminChange         *GroupAdminChangedNotice       `json:"group_admin_change,omitempty"`
	GroupMemberBan           *GroupMemberBanNotice          `json:"group_member_ban,omitempty"`
	GroupSignIn              *GroupSignInNotice             `json:"group_sign_in,omitempty"`
	GroupWholeBan            *GroupWholeBanNotice           `json:"group_whole_ban,omitempty"`
	GroupFileUploaded        *GroupFileUploadedNotice       `json:"group_file_uploaded,omitempty"`
}

type FriendPokeNotice struct {
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	Action      string `json:"action"`
	Suffix      string `json:"suffix"`
	ActionImage string `json:"action_image"`
}

type FriendRecallNotice struct {
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	MessageID   string `json:"message_id"`
	TipText     string `json:"tip_text"`
}

type FriendFileUploadedNotice struct {
	OperatorUID string      `json:"operator_uid"`
	OperatorUIN uint64      `json:"operator_uin"`
	File        FileElement `json:"file"`
}

type GroupPokeNotice struct {
	GroupID     uint64 `json:"group_id"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	TargetUID   string `json:"target_uid"`
	TargetUIN   uint64 `json:"target_uin"`
	Action      string `json:"action"`
	Suffix      string `json:"suffix"`
	ActionImage string `json:"action_image"`
}

type GroupCardChangedNotice struct {
	GroupID     uint64 `json:"group_id"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	TargetUID   string `json:"target_uid"`
	TargetUIN   uint64 `json:"target_uin"`
	NewCard     string `json:"new_card"`
}

type GroupUniqueTitleChangedNotice struct {
	GroupID uint64 `json:"group_id"`
	Target  uint64 `json:"target"`
	Title   string `json:"title"`
}

type GroupEssenceMessageNotice struct {
	GroupID     uint64 `json:"group_id"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	TargetUID   string `json:"target_uid"`
	TargetUIN   uint64 `json:"target_uin"`
	MessageID   string `json:"message_id"`
	IsSet       bool   `json:"is_set"`
}

type GroupRecallNotice struct {
	GroupID     uint64 `json:"group_id"`
	MessageID   string `json:"message_id"`
	TipText     string `json:"tip_text"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	TargetUID   string `json:"target_uid"`
	TargetUIN   uint64 `json:"target_uin"`
	MessageSeq  uint64 `json:"message_seq"`
}

type GroupMemberIncreasedNotice struct {
	GroupID     uint64 `json:"group_id"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	TargetUID   string `json:"target_uid"`
	TargetUIN   uint64 `json:"target_uin"`
	Kind        int32  `json:"kind"`
}

// GroupMemberDecreasedNotice may omit the target when the core cannot
// resolve who left; the operator is always present.
type GroupMemberDecreasedNotice struct {
	GroupID     uint64  `json:"group_id"`
	OperatorUID string  `json:"operator_uid"`
	OperatorUIN uint64  `json:"operator_uin"`
	TargetUID   *string `json:"target_uid,omitempty"`
	TargetUIN   *uint64 `json:"target_uin,omitempty"`
	Kind        int32   `json:"kind"`
}

type GroupAdminChangedNotice struct {
	GroupID   uint64 `json:"group_id"`
	TargetUID string `json:"target_uid"`
	TargetUIN uint64 `json:"target_uin"`
	IsAdmin   bool   `json:"is_admin"`
}

type GroupMemberBanNotice struct {
	GroupID     uint64 `json:"group_id"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	TargetUID   string `json:"target_uid"`
	TargetUIN   uint64 `json:"target_uin"`
	Duration    int32  `json:"duration"`
	Kind        int32  `json:"kind"`
}

type GroupSignInNotice struct {
	GroupID   uint64 `json:"group_id"`
	TargetUID string `json:"target_uid"`
	TargetUIN uint64 `json:"target_uin"`
	Action    string `json:"action"`
	Suffix    string `json:"suffix"`
	RankImage string `json:"rank_image"`
}

type GroupWholeBanNotice struct {
	GroupID     uint64 `json:"group_id"`
	OperatorUID string `json:"operator_uid"`
	OperatorUIN uint64 `json:"operator_uin"`
	IsBan       bool   `json:"is_ban"`
}

type GroupFileUploadedNotice struct {
	GroupID     uint64      `json:"group_id"`
	OperatorUID string      `json:"operator_uid"`
	OperatorUIN uint64      `json:"operator_uin"`
	File        FileElement `json:"file"`
}

// RequestType discriminates RequestEvent payloads.
type RequestType int32

const (
	RequestUnknown          RequestType = 0
	RequestFriendApply      RequestType = 1
	RequestGroupApply       RequestType = 2
	RequestInvitedJoinGroup RequestType = 3
)

// RequestEvent is an inbound friend or group request. Exactly one payload
// pointer is set.
type RequestEvent struct {
	Type      RequestType `json:"type"`
	Time      uint64      `json:"time"`
	RequestID string      `json:"request_id"`

	FriendApply      *FriendApplyRequest      `json:"friend_apply,omitempty"`
	GroupApply       *GroupApplyRequest       `json:"group_apply,omitempty"`
	InvitedJoinGroup *InvitedJoinGroupRequest `json:"invited_group,omitempty"`
}

type FriendApplyRequest struct {
	ApplierUID string `json:"applier_uid"`
	ApplierUIN uint64 `json:"applier_uin"`
	Message    string `json:"message"`
	Flag       string `json:"flag"`
}

type GroupApplyRequest struct {
	GroupID    uint64 `json:"group_id"`
	ApplierUID string `json:"applier_uid"`
	ApplierUIN uint64 `json:"applier_uin"`
	InviterUID string `json:"inviter_uid"`
	InviterUIN uint64 `json:"inviter_uin"`
	Reason     string `json:"reason"`
	Flag       string `json:"flag"`
}

type InvitedJoinGroupRequest struct {
	GroupID    uint64 `json:"group_id"`
	InviterUID string `json:"inviter_uid"`
	InviterUIN uint64 `json:"inviter_uin"`
	Flag       string `json:"flag"`
}
