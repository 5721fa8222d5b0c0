package bot

import (
	"context"
	"fmt"

	"github.com/ggoodman/kritor-gateway/internal/wire"
	"github.com/ggoodman/kritor-gateway/kritor"
)

// call sends a typed command and decodes its typed response.
func call[Resp any](ctx context.Context, b *Bot, cmd string, req any) (*Resp, error) {
	resp, err := b.SendCommand(ctx, cmd, req, true)
	if err != nil {
		return nil, err
	}
	out := new(Resp)
	if len(resp.Buf) == 0 {
		return out, nil
	}
	if err := wire.Unmarshal(resp.Buf, out); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %w", ErrInternal, cmd, err)
	}
	return out, nil
}

// SendMessage sends elements to contact.
func (b *Bot) SendMessage(ctx context.Context, contact kritor.Contact, elements kritor.Elements) (*kritor.SendMessageResponse, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrClient)
	}
	return call[kritor.SendMessageResponse](ctx, b, kritor.CmdSendMessage, &kritor.SendMessageRequest{
		Contact:  contact,
		Elements: elements,
	})
}

// RecallMessage withdraws a message previously sent to contact.
func (b *Bot) RecallMessage(ctx context.Context, contact kritor.Contact, messageID string) error {
	_, err := call[kritor.RecallMessageResponse](ctx, b, kritor.CmdRecallMessage, &kritor.RecallMessageRequest{
		Contact:   contact,
		MessageID: messageID,
	})
	return err
}

func (b *Bot) GetVersion(ctx context.Context) (*kritor.GetVersionResponse, error) {
	return call[kritor.GetVersionResponse](ctx, b, kritor.CmdGetVersion, &kritor.GetVersionRequest{})
}

func (b *Bot) GetCurrentAccount(ctx context.Context) (*kritor.GetCurrentAccountResponse, error) {
	return call[kritor.GetCurrentAccountResponse](ctx, b, kritor.CmdGetCurrentAccount, &kritor.GetCurrentAccountRequest{})
}

// GetGroupList fetches the account's groups. refresh asks the core to bypass
// its own cache.
func (b *Bot) GetGroupList(ctx context.Context, refresh bool) ([]kritor.GroupInfo, error) {
	resp, err := call[kritor.GetGroupListResponse](ctx, b, kritor.CmdGetGroupList, &kritor.GetGroupListRequest{Refresh: &refresh})
	if err != nil {
		return nil, err
	}
	return resp.GroupsInfo, nil
}

func (b *Bot) GetGroupMemberList(ctx context.Context, groupID uint64, refresh bool) ([]kritor.GroupMemberInfo, error) {
	resp, err := call[kritor.GetGroupMemberListResponse](ctx, b, kritor.CmdGetGroupMemberList, &kritor.GetGroupMemberListRequest{
		GroupID: groupID,
		Refresh: &refresh,
	})
	if err != nil {
		return nil, err
	}
	return resp.GroupMembersInfo, nil
}

func (b *Bot) GetFriendList(ctx context.Context, refresh bool) ([]kritor.FriendInfo, error) {
	resp, err := call[kritor.GetFriendListResponse](ctx, b, kritor.CmdGetFriendList, &kritor.GetFriendListRequest{Refresh: &refresh})
	if err != nil {
		return nil, err
	}
	return resp.FriendsInfo, nil
}
