package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/Odillon241/Chronodil-sub001/internal/ierr"
	"github.com/Odillon241/Chronodil-sub001/internal/persistence"
)

var ErrNotMember = errors.New("Not a member of this conversation")

// Gate authorizes room operations against persisted conversation membership.
// Every call hits the store: membership may change between a join and a later send.
type Gate struct {
	members persistence.MembershipStore
}

func NewGate(members persistence.MembershipStore) *Gate {
	return &Gate{
		members,
	}
}

func (g *Gate) CanOperate(ctx context.Context, userId string, conversationId string) (bool, error) {
	if userId == "" || conversationId == "" {
		return false, nil
	}

	isMember, err := g.members.IsMember(ctx, userId, conversationId)
	if err != nil {
		return false, fmt.Errorf("check membership of %s in %s: %w", userId, conversationId, err)
	}

	return isMember, nil
}

// Authorize is CanOperate folded into a single error: ErrorCodeNotMember when
// the user is not a member, the lookup failure otherwise.
func (g *Gate) Authorize(ctx context.Context, userId string, conversationId string) error {
	isMember, err := g.CanOperate(ctx, userId, conversationId)
	if err != nil {
		return err
	}

	if !isMember {
		return ierr.New(ierr.ErrorCodeNotMember, ErrNotMember)
	}

	return nil
}
