package domain

// Tier 訂閱方案
type Tier string

const (
	// TierFree 免費，只能看試看片段
	TierFree Tier = "FREE"
	// TierStandard 標準，480p
	TierStandard Tier = "STANDARD"
	// TierPremium 進階，720p / 1080p
	TierPremium Tier = "PREMIUM"
)

// Valid 是否為已知方案
func (t Tier) Valid() bool {
	return t == TierFree || t == TierStandard || t == TierPremium
}

// EntitlementView 每次請求由身分服務推導，不落地
type EntitlementView struct {
	UserID string `json:"user_id"`
	Tier   Tier   `json:"tier"`
}

// Quality 使用者要求的畫質
type Quality string

const (
	// Quality480p standard
	Quality480p Quality = "480p"
	// Quality720p premium default
	Quality720p Quality = "720p"
	// Quality1080p premium max
	Quality1080p Quality = "1080p"
)

// AvailableQualities 各方案可選畫質，FREE 沒有選擇
func AvailableQualities(t Tier) []Quality {
	switch t {
	case TierStandard:
		return []Quality{Quality480p}
	case TierPremium:
		return []Quality{Quality720p, Quality1080p}
	}
	return nil
}
