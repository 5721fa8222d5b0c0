package bot

import (
	"cmp"
	"maps"
	"slices"
	"sync"

	"github.com/ggoodman/kritor-gateway/kritor"
)

// roster caches the groups, group members and friends of an account. Each
// collection is replaced wholesale; nil maps mean "not yet populated".
type roster struct {
	mu      sync.RWMutex
	groups  map[uint64]kritor.GroupInfo
	members map[uint64]map[string]kritor.GroupMemberInfo
	friends map[string]kritor.FriendInfo
}

func (r *roster) counts() (groups, friends int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups), len(r.friends)
}

// SetGroups replaces the group roster.
func (b *Bot) SetGroups(groups []kritor.GroupInfo) {
	m := make(map[uint64]kritor.GroupInfo, len(groups))
	for _, g := range groups {
		m[g.GroupID] = g
	}
	b.roster.mu.Lock()
	b.roster.groups = m
	b.roster.mu.Unlock()
}

// SetGroupMembers replaces the member roster of one group.
func (b *Bot) SetGroupMembers(groupID uint64, members []kritor.GroupMemberInfo) {
	m := make(map[string]kritor.GroupMemberInfo, len(members))
	for _, mem := range members {
		m[mem.UID] = mem
	}
	b.roster.mu.Lock()
	if b.roster.members == nil {
		b.roster.members = make(map[uint64]map[string]kritor.GroupMemberInfo)
	}
	b.roster.members[groupID] = m
	b.roster.mu.Unlock()
}

// SetFriends replaces the friend roster.
func (b *Bot) SetFriends(friends []kritor.FriendInfo) {
	m := make(map[string]kritor.FriendInfo, len(friends))
	for _, f := range friends {
		m[f.UID] = f
	}
	b.roster.mu.Lock()
	b.roster.friends = m
	b.roster.mu.Unlock()
}

// Groups returns a snapshot of the group roster sorted by id. ok is false
// until the roster has been populated.
func (b *Bot) Groups() (groups []kritor.GroupInfo, ok bool) {
	b.roster.mu.RLock()
	defer b.roster.mu.RUnlock()
	if b.roster.groups == nil {
		return nil, false
	}
	keys := slices.Sorted(maps.Keys(b.roster.groups))
	groups = make([]kritor.GroupInfo, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, b.roster.groups[k])
	}
	return groups, true
}

func (b *Bot) Group(groupID uint64) (kritor.GroupInfo, bool) {
	b.roster.mu.RLock()
	defer b.roster.mu.RUnlock()
	g, ok := b.roster.groups[groupID]
	return g, ok
}

// GroupMembers returns a snapshot of one group's members. ok is false until
// that group's roster has been populated.
func (b *Bot) GroupMembers(groupID uint64) (members []kritor.GroupMemberInfo, ok bool) {
	b.roster.mu.RLock()
	defer b.roster.mu.RUnlock()
	m, ok := b.roster.members[groupID]
	if !ok {
		return nil, false
	}
	members = slices.Collect(maps.Values(m))
	slices.SortFunc(members, func(a, b kritor.GroupMemberInfo) int {
		return cmp.Compare(a.UIN, b.UIN)
	})
	return members, true
}

func (b *Bot) GroupMember(groupID uint64, uid string) (kritor.GroupMemberInfo, bool) {
	b.roster.mu.RLock()
	defer b.roster.mu.RUnlock()
	mem, ok := b.roster.members[groupID][uid]
	return mem, ok
}

// Friends returns a snapshot of the friend roster. ok is false until the
// roster has been populated.
func (b *Bot) Friends() (friends []kritor.FriendInfo, ok bool) {
	b.roster.mu.RLock()
	defer b.roster.mu.RUnlock()
	if b.roster.friends == nil {
		return nil, false
	}
	friends = slices.Collect(maps.Values(b.roster.friends))
	slices.SortFunc(friends, func(a, b kritor.FriendInfo) int {
		return cmp.Compare(a.UIN, b.UIN)
	})
	return friends, true
}

func (b *Bot) Friend(uid string) (kritor.FriendInfo, bool) {
	b.roster.mu.RLock()
	defer b.roster.mu.RUnlock()
	f, ok := b.roster.friends[uid]
	return f, ok
}
