package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// MaxConcurrentMemberFetches bounds the group member list requests issued
// during warm-up.
const MaxConcurrentMemberFetches = 20

// Init warms the Bot's caches: the current account, the group roster, every
// group's member roster and the friend roster. Stage failures are logged and
// joined into the returned error; later stages still run.
func (b *Bot) Init(ctx context.Context) error {
	start := time.Now()
	var errs []error

	if acct, err := b.GetCurrentAccount(ctx); err != nil {
		errs = append(errs, fmt.Errorf("current account: %w", err))
		b.log.WarnContext(ctx, "bot.init.account.fail", slog.String("err", err.Error()))
	} else {
		b.SetNickname(acct.AccountName)
	}

	groups, err := b.GetGroupList(ctx, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("group list: %w", err))
		b.log.WarnContext(ctx, "bot.init.groups.fail", slog.String("err", err.Error()))
	} else {
		b.SetGroups(groups)

		var failed atomic.Int32
		var g errgroup.Group
		g.SetLimit(MaxConcurrentMemberFetches)
		for _, grp := range groups {
			g.Go(func() error {
				members, err := b.GetGroupMemberList(ctx, grp.GroupID, false)
				if err != nil {
					failed.Add(1)
					b.log.WarnContext(ctx, "bot.init.members.fail",
						slog.Uint64("group_id", grp.GroupID),
						slog.String("err", err.Error()),
					)
					return nil
				}
				b.SetGroupMembers(grp.GroupID, members)
				return nil
			})
		}
		_ = g.Wait()
		if n := failed.Load(); n > 0 {
			errs = append(errs, fmt.Errorf("member lists: %d of %d groups failed", n, len(groups)))
		}
	}

	friends, err := b.GetFriendList(ctx, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("friend list: %w", err))
		b.log.WarnContext(ctx, "bot.init.friends.fail", slog.String("err", err.Error()))
	} else {
		b.SetFriends(friends)
	}

	gc, fc := b.roster.counts()
	b.log.InfoContext(ctx, "bot.init.done",
		slog.String("nickname", b.Nickname()),
		slog.Int("groups", gc),
		slog.Int("friends", fc),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return errors.Join(errs...)
}
