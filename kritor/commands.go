package kritor

// Command names understood by kritor cores. Names are dot-qualified
// "<Service>.<Method>".
const (
	CmdGetVersion         = "CoreService.GetVersion"
	CmdGetCurrentAccount  = "CoreService.GetCurrentAccount"
	CmdSendMessage        = "MessageService.SendMessage"
	CmdRecallMessage      = "MessageService.RecallMessage"
	CmdGetGroupList       = "GroupService.GetGroupList"
	CmdGetGroupMemberList = "GroupService.GetGroupMemberList"
	CmdGetFriendList      = "FriendService.GetFriendList"
)

// CommandRequest is the envelope the gateway writes to a core on the reverse
// stream. Seq is the correlation tag echoed by the matching response.
type CommandRequest struct {
	Cmd        string `json:"cmd"`
	Seq        uint32 `json:"seq"`
	Buf        []byte `json:"buf,omitempty"`
	NoResponse bool   `json:"no_response,omitempty"`
}

// ResponseCode mirrors the kritor response status codes.
type ResponseCode int32

const (
	ResponseOK ResponseCode = 0
)

// CommandResponse is the envelope a core writes back on the reverse stream.
// Msg carries a human-readable error when the core rejected the command.
type CommandResponse struct {
	Cmd  string       `json:"cmd"`
	Seq  uint32       `json:"seq"`
	Code ResponseCode `json:"code,omitempty"`
	Msg  *string      `json:"msg,omitempty"`
	Buf  []byte       `json:"buf,omitempty"`
}

// Failed reports whether the core signalled an error for this command.
func (r *CommandResponse) Failed() bool {
	return r.Code != ResponseOK || (r.Msg != nil && *r.Msg != "")
}

// ErrorMessage returns the core supplied error text.
func (r *CommandResponse) ErrorMessage() string {
	if r.Msg != nil && *r.Msg != "" {
		return *r.Msg
	}
	if r.Code != ResponseOK {
		return "core returned non-zero code"
	}
	return ""
}

// RequestPushEvent is returned to a core when its event stream ends.
type RequestPushEvent struct {
	Type int32 `json:"type"`
}

type GetVersionRequest struct{}

type GetVersionResponse struct {
	Version string `json:"version"`
	AppName string `json:"app_name"`
}

type GetCurrentAccountRequest struct{}

type GetCurrentAccountResponse struct {
	AccountUID  string `json:"account_uid"`
	AccountUIN  uint64 `json:"account_uin"`
	AccountName string `json:"account_name"`
}

type SendMessageRequest struct {
	Contact    Contact  `json:"contact"`
	Elements   Elements `json:"elements"`
	RetryCount *uint32  `json:"retry_count,omitempty"`
}

type SendMessageResponse struct {
	MessageID   string `json:"message_id"`
	MessageTime uint64 `json:"message_time"`
}

type RecallMessageRequest struct {
	Contact   Contact `json:"contact"`
	MessageID string  `json:"message_id"`
}

type RecallMessageResponse struct{}

type GroupInfo struct {
	GroupID        uint64   `json:"group_id"`
	GroupName      string   `json:"group_name"`
	GroupRemark    string   `json:"group_remark"`
	Owner          uint64   `json:"owner"`
	Admins         []uint64 `json:"admins,omitempty"`
	MaxMemberCount uint32   `json:"max_member_count"`
	MemberCount    uint32   `json:"member_count"`
	GroupUIN       uint64   `json:"group_uin"`
}

type GetGroupListRequest struct {
	Refresh *bool `json:"refresh,omitempty"`
}

type GetGroupListResponse struct {
	GroupsInfo []GroupInfo `json:"groups_info"`
}

// MemberRole is a member's rank inside a group.
type MemberRole int32

const (
	RoleMember MemberRole = 0
	RoleAdmin  MemberRole = 1
	RoleOwner  MemberRole = 2
)

type GroupMemberInfo struct {
	UID             string     `json:"uid"`
	UIN             uint64     `json:"uin"`
	Nick            string     `json:"nick"`
	Age             uint32     `json:"age"`
	UniqueTitle     string     `json:"unique_title"`
	Card            string     `json:"card"`
	JoinTime        uint64     `json:"join_time"`
	LastActiveTime  uint64     `json:"last_active_time"`
	Level           uint32     `json:"level"`
	ShutUpTimestamp uint64     `json:"shut_up_timestamp"`
	Role            MemberRole `json:"role"`
}

type GetGroupMemberListRequest struct {
	GroupID uint64 `json:"group_id"`
	Refresh *bool  `json:"refresh,omitempty"`
}

type GetGroupMemberListResponse struct {
	GroupMembersInfo []GroupMemberInfo `json:"group_members_info"`
}

type FriendInfo struct {
	UID     string `json:"uid"`
	UIN     uint64 `json:"uin"`
	QID     string `json:"qid"`
	Nick    string `json:"nick"`
	Remark  string `json:"remark"`
	Level   uint32 `json:"level"`
	Age     uint32 `json:"age"`
	VoteCnt uint32 `json:"vote_cnt"`
	Gender  int32  `json:"gender"`
	GroupID int32  `json:"group_id"`
}

type GetFriendListRequest struct {
	Refresh *bool `json:"refresh,omitempty"`
}

type GetFriendListResponse struct {
	FriendsInfo []FriendInfo `json:"friends_info"`
}
