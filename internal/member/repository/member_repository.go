package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tiered_video_service/internal/member/domain"
)

// MemberRepository 身分服務的會員資料，只讀訂閱方案
type MemberRepository interface {
	AutoMigrate(ctx context.Context) error
	CreateMember(ctx context.Context, member *domain.Member) error
	UpdatePlan(ctx context.Context, memberID, plan string) error
	FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error)
}

type memberRepository struct {
	db *pgxpool.Pool
}

// NewMemberRepository create a MemberRepository
func NewMemberRepository(db *pgxpool.Pool) MemberRepository {
	return &memberRepository{db: db}
}

const memberSchema = `
CREATE TABLE IF NOT EXISTS member (
	id         BIGSERIAL PRIMARY KEY,
	member_id  VARCHAR(64) NOT NULL UNIQUE,
	email      VARCHAR(255) NOT NULL UNIQUE,
	status     SMALLINT NOT NULL DEFAULT 0,
	plan       VARCHAR(32) NOT NULL DEFAULT ''
)`

func (r *memberRepository) AutoMigrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, memberSchema)
	return err
}

func (r *memberRepository) CreateMember(ctx context.Context, member *domain.Member) error {
	return r.db.QueryRow(ctx,
		"INSERT INTO member(member_id, email, status, plan) VALUES ($1, $2, $3, $4) RETURNING id",
		member.MemberID, member.Email, member.Status, member.Plan,
	).Scan(&member.ID)
}

func (r *memberRepository) UpdatePlan(ctx context.Context, memberID, plan string) error {
	tag, err := r.db.Exec(ctx, "UPDATE member SET plan = $1 WHERE member_id = $2", plan, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("memberID[%s]: %w", memberID, domain.ErrMemberNotFound)
	}
	return nil
}

func (r *memberRepository) FindByMember(ctx context.Context, memberQuery *domain.MemberQuery) (*domain.Member, error) {
	queryStr := "SELECT id, member_id, email, status, plan FROM member WHERE 1=1"
	params := []interface{}{}
	paramCount := 1

	if memberQuery.Email != nil {
		queryStr += fmt.Sprintf(" AND email = $%d", paramCount)
		params = append(params, *memberQuery.Email)
		paramCount++
	}
	if memberQuery.MemberID != nil {
		queryStr += fmt.Sprintf(" AND member_id = $%d", paramCount)
		params = append(params, *memberQuery.MemberID)
		paramCount++
	}
	if memberQuery.ID != nil {
		queryStr += fmt.Sprintf(" AND id = $%d", paramCount)
		params = append(params, *memberQuery.ID)
	}

	row := r.db.QueryRow(ctx, queryStr, params...)
	var member domain.Member
	err := row.Scan(&member.ID, &member.MemberID, &member.Email, &member.Status, &member.Plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}

	return &member, nil
}
