package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tiered_video_service/internal/member/domain"
	"tiered_video_service/internal/member/repository"
	videodomain "tiered_video_service/internal/video/domain"
	"tiered_video_service/pkg/database"
	errprocess "tiered_video_service/pkg/err"
	"tiered_video_service/pkg/logger"

	"go.uber.org/zap"
)

// legacyPlans 舊方案名稱對應，未列出的一律 FREE
var legacyPlans = map[string]videodomain.Tier{
	"free":     videodomain.TierFree,
	"trial":    videodomain.TierFree,
	"guest":    videodomain.TierFree,
	"standard": videodomain.TierStandard,
	"saving":   videodomain.TierStandard,
	"basic":    videodomain.TierStandard,
	"premium":  videodomain.TierPremium,
}

// TierFromPlan 身分服務的方案名稱轉成 tier
func TierFromPlan(plan string) videodomain.Tier {
	if tier, ok := legacyPlans[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return tier
	}
	return videodomain.TierFree
}

// EntitlementUseCase 由會員資料推導 EntitlementView，結果以 redis 短暫快取
type EntitlementUseCase struct {
	memberRepo repository.MemberRepository
	cache      database.RedisRepository[videodomain.EntitlementView]
	cacheTTL   time.Duration
}

// NewEntitlementUseCase cache 可為 nil
func NewEntitlementUseCase(
	memberRepo repository.MemberRepository,
	cache database.RedisRepository[videodomain.EntitlementView],
	cacheTTL time.Duration,
) *EntitlementUseCase {
	return &EntitlementUseCase{memberRepo: memberRepo, cache: cache, cacheTTL: cacheTTL}
}

func entitlementKey(memberID string) string {
	return "entitlement:" + memberID
}

// Resolve 匿名、找不到或停權的會員都視為 FREE；身分服務無法連線時回傳錯誤
func (e *EntitlementUseCase) Resolve(ctx context.Context, memberID string) (videodomain.EntitlementView, error) {
	view := videodomain.EntitlementView{UserID: memberID, Tier: videodomain.TierFree}
	if memberID == "" {
		return view, nil
	}

	if e.cache != nil {
		cached, err := e.cache.Get(ctx, entitlementKey(memberID))
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, database.ErrCacheMiss) {
			logger.Log.Warn("entitlement cache read failed", zap.String("member_id", memberID), zap.Error(err))
		}
	}

	member, err := e.memberRepo.FindByMember(ctx, &domain.MemberQuery{MemberID: &memberID})
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		logger.Log.Debug("unknown member, defaulting to FREE", zap.String("member_id", memberID))
	case err != nil:
		return view, errprocess.Wrap(err, fmt.Sprintf("memberID[%s] 查詢會員失敗", memberID))
	case member.Active():
		view.Tier = TierFromPlan(member.Plan)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, entitlementKey(memberID), view, e.cacheTTL); err != nil {
			logger.Log.Warn("entitlement cache write failed", zap.String("member_id", memberID), zap.Error(err))
		}
	}
	return view, nil
}

// Invalidate 方案異動後清除快取
func (e *EntitlementUseCase) Invalidate(ctx context.Context, memberID string) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Del(ctx, entitlementKey(memberID))
}
