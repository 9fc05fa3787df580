package repository

import (
	"context"

	"github.com/bradfitz/gomemcache/memcache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacomunita/comunita/internal/domain"
	"github.com/lacomunita/comunita/internal/infra/database/models"
)

type InvitationRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewInvitationRepository(db *gorm.DB, mc *memcache.Client) *InvitationRepository {
	return &InvitationRepository{db: db, mc: mc}
}

func invitationToDomain(m models.Invitation) domain.Invitation {
	return domain.Invitation{
		ID:         m.ID,
		TargetKind: domain.InvitationTargetKind(m.TargetKind),
		TargetID:   m.TargetID,
		InviterID:  m.InviterID,
		InviteeID:  m.InviteeID,
		Accepted:   m.Accepted,
		CDate:      m.CDate,
	}
}

// Create inserts a pending invitation. The inviter must belong to the
// target; the invitee must exist.
func (r *InvitationRepository) Create(ctx context.Context, kind domain.InvitationTargetKind, targetID, inviterID, inviteeID int64) (domain.Invitation, error) {
	m := models.Invitation{
		TargetKind: string(kind),
		TargetID:   targetID,
		InviterID:  inviterID,
		InviteeID:  inviteeID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitee models.User
		if err := tx.Take(&invitee, "id = ?", inviteeID).Error; err != nil {
			return notFoundAs(err, "invitee")
		}

		var member bool
		var err error
		switch kind {
		case domain.InviteTargetGroup:
			var group models.Group
			if err := tx.Take(&group, "id = ?", targetID).Error; err != nil {
				return notFoundAs(err, "group")
			}
			member, err = isGroupMember(tx, targetID, inviterID)
		case domain.InviteTargetChat:
			var chat models.Chat
			if err := tx.Take(&chat, "id = ?", targetID).Error; err != nil {
				return notFoundAs(err, "chat")
			}
			member, err = isChatMember(tx, targetID, inviterID)
		default:
			return domain.ValidationError{Reason: "invalid invitation target"}
		}
		if err != nil {
			return err
		}
		if !member {
			return domain.ForbiddenError{Reason: "inviter is not a member of the target"}
		}

		return tx.Create(&m).Error
	})
	if err != nil {
		return domain.Invitation{}, err
	}

	return invitationToDomain(m), nil
}

// ListFor returns invitations where the user is inviter or invitee, in
// insertion order. An invitation never appears twice since inviter and
// invitee always differ.
func (r *InvitationRepository) ListFor(ctx context.Context, kind domain.InvitationTargetKind, userID int64) ([]domain.Invitation, error) {
	var rows []models.Invitation
	err := r.db.WithContext(ctx).
		Where("target_kind = ? AND (inviter_id = ? OR invitee_id = ?)", string(kind), userID, userID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.Invitation, 0, len(rows))
	for _, m := range rows {
		result = append(result, invitationToDomain(m))
	}
	return result, nil
}

// Resolve applies an accept or reject. The invitation row is locked so two
// concurrent resolutions serialize; the loser observes the resolved state
// and fails with Conflict. On accept the membership insert and, for groups,
// the activity recompute commit in the same transaction as the state flip.
func (r *InvitationRepository) Resolve(ctx context.Context, kind domain.InvitationTargetKind, id, actorID int64, verdict domain.InvitationVerdict) (domain.Invitation, error) {
	var m models.Invitation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&m, "id = ? AND target_kind = ?", id, string(kind)).Error
		if err != nil {
			return notFoundAs(err, "invitation")
		}

		state, err := domain.ResolveInvitation(invitationToDomain(m), actorID, verdict)
		if err != nil {
			return err
		}

		accepted := state == domain.InviteAccepted
		m.Accepted = &accepted
		err = tx.Model(&models.Invitation{}).
			Where("id = ?", id).
			Update("accepted", accepted).Error
		if err != nil {
			return err
		}

		if !accepted {
			return nil
		}

		switch kind {
		case domain.InviteTargetGroup:
			var group models.Group
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Take(&group, "id = ?", m.TargetID).Error
			if err != nil {
				return notFoundAs(err, "group")
			}
			return addGroupMember(tx, m.TargetID, actorID)
		case domain.InviteTargetChat:
			var chat models.Chat
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Take(&chat, "id = ?", m.TargetID).Error
			if err != nil {
				return notFoundAs(err, "chat")
			}
			return addChatMember(tx, m.TargetID, actorID)
		}
		return domain.ValidationError{Reason: "invalid invitation target"}
	})
	if err != nil {
		return domain.Invitation{}, err
	}

	// An accepted group invitation may have flipped the activity flag.
	if kind == domain.InviteTargetGroup && verdict == domain.VerdictAccept && r.mc != nil {
		r.mc.Delete(groupCacheKey(m.TargetID))
	}

	return invitationToDomain(m), nil
}
