package domain

import "errors"

// MemberStatus 用來表示使用者狀態
type MemberStatus int

// 状态: 0=offline, 1=online, 2=ban ,3=delete
const (
	// MemberStatusOffLine 離線
	MemberStatusOffLine MemberStatus = iota
	// MemberStatusOnLine 在線
	MemberStatusOnLine
	// MemberStatusBan 封鎖
	MemberStatusBan
	// MemberStatusDelete 刪除
	MemberStatusDelete
)

// ErrMemberNotFound 找不到會員
var ErrMemberNotFound = errors.New("no member found with given criteria")

// Member 身分服務中的會員，Plan 為訂閱方案原始名稱（可能是舊名稱）
type Member struct {
	ID       int64
	MemberID string
	Email    string
	Status   MemberStatus
	Plan     string
}

// Active 未封鎖、未刪除
func (m *Member) Active() bool {
	return m.Status != MemberStatusBan && m.Status != MemberStatusDelete
}

// MemberQuery join conditions are used to query members
type MemberQuery struct {
	ID       *int64  `db:"id"`
	MemberID *string `db:"member_id"`
	Email    *string `db:"email"`
}
