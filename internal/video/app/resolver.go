package app

import (
	"fmt"

	"tiered_video_service/internal/video/domain"
)

// TierResolver 依方案與要求畫質挑選 rendition，只讀取紀錄
type TierResolver struct{}

// NewTierResolver 建立 TierResolver
func NewTierResolver() TierResolver {
	return TierResolver{}
}

// Resolve 依序判斷：狀態 -> 方案 -> 畫質替代
// premium 找不到時退到 standard_480p，絕不退到 free_preview
func (TierResolver) Resolve(rec *domain.VideoRecord, ent domain.EntitlementView, requested domain.Quality) domain.ResolveResult {
	if rec == nil {
		return unavailable(domain.ReasonNotProduced)
	}

	switch rec.Status {
	case domain.VideoCompleted:
	case domain.VideoFailed:
		return unavailable(domain.ReasonFailed)
	default:
		return unavailable(domain.ReasonProcessing)
	}

	switch ent.Tier {
	case domain.TierFree:
		return exact(rec, domain.TagFreePreview)
	case domain.TierStandard:
		return exact(rec, domain.TagStandard480p)
	case domain.TierPremium:
		return resolvePremium(rec, requested)
	}
	return unavailable(domain.ReasonUnknownTier)
}

func resolvePremium(rec *domain.VideoRecord, requested domain.Quality) domain.ResolveResult {
	desired, alternate := domain.TagPremium720p, domain.TagPremium1080p
	if requested == domain.Quality1080p {
		desired, alternate = domain.TagPremium1080p, domain.TagPremium720p
	}

	if rec.Renditions.Has(desired) {
		return domain.ResolveResult{Decision: domain.DecisionOK, RenditionTag: desired, Locator: rec.Renditions[desired]}
	}
	for _, tag := range []domain.RenditionTag{alternate, domain.TagStandard480p} {
		if rec.Renditions.Has(tag) {
			return domain.ResolveResult{
				Decision:     domain.DecisionDegraded,
				RenditionTag: tag,
				Locator:      rec.Renditions[tag],
				Reason:       fmt.Sprintf("degraded: served %s instead of %s", tag, desired),
			}
		}
	}
	return unavailable(domain.ReasonNotProduced)
}

func exact(rec *domain.VideoRecord, tag domain.RenditionTag) domain.ResolveResult {
	if !rec.Renditions.Has(tag) {
		return unavailable(domain.ReasonNotProduced)
	}
	return domain.ResolveResult{Decision: domain.DecisionOK, RenditionTag: tag, Locator: rec.Renditions[tag]}
}

func unavailable(reason string) domain.ResolveResult {
	return domain.ResolveResult{Decision: domain.DecisionUnavailable, Reason: reason}
}

// QualityOf rendition tag 對應的畫質
func QualityOf(tag domain.RenditionTag) domain.Quality {
	switch tag {
	case domain.TagPremium1080p:
		return domain.Quality1080p
	case domain.TagPremium720p:
		return domain.Quality720p
	case domain.TagStandard480p, domain.TagFreePreview:
		return domain.Quality480p
	}
	return ""
}
