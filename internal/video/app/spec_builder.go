package app

import (
	"fmt"
	"path"
	"strings"

	"tiered_video_service/internal/video/domain"
)

// renditionProfile 單一 rendition 的固定參數
type renditionProfile struct {
	tier         domain.Tier
	dir          string
	width        int
	height       int
	videoBitrate int
	audioBitrate int
	clipped      bool
}

var catalog = map[domain.RenditionTag]renditionProfile{
	domain.TagFreePreview:  {tier: domain.TierFree, dir: "free", width: 854, height: 480, videoBitrate: 1_000_000, audioBitrate: 64_000, clipped: true},
	domain.TagStandard480p: {tier: domain.TierStandard, dir: "standard", width: 854, height: 480, videoBitrate: 2_000_000, audioBitrate: 96_000},
	domain.TagPremium720p:  {tier: domain.TierPremium, dir: "premium", width: 1280, height: 720, videoBitrate: 4_000_000, audioBitrate: 128_000},
	domain.TagPremium1080p: {tier: domain.TierPremium, dir: "premium", width: 1920, height: 1080, videoBitrate: 6_000_000, audioBitrate: 192_000},
}

const (
	thumbnailDir    = "thumbnails"
	thumbnailWidth  = 1280
	thumbnailHeight = 720
)

// RenditionSpecBuilder 將 tier 集合轉成輸出規格，純函式無 I/O
type RenditionSpecBuilder struct {
	prefix         string
	previewSeconds int
}

// NewRenditionSpecBuilder prefix 例如 s3://videos；previewSeconds 為免費片段長度
func NewRenditionSpecBuilder(prefix string, previewSeconds int) *RenditionSpecBuilder {
	if previewSeconds <= 0 {
		previewSeconds = 10
	}
	return &RenditionSpecBuilder{prefix: strings.TrimSuffix(prefix, "/"), previewSeconds: previewSeconds}
}

// PreviewSeconds 免費片段秒數
func (b *RenditionSpecBuilder) PreviewSeconds() int {
	return b.previewSeconds
}

// Build 回傳 tiers 需要的所有 spec，依 domain.AllRenditionTags 排序
func (b *RenditionSpecBuilder) Build(videoID string, tiers ...domain.Tier) []domain.RenditionSpec {
	want := make(map[domain.Tier]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}
	var tags []domain.RenditionTag
	for _, tag := range domain.AllRenditionTags {
		if want[catalog[tag].tier] {
			tags = append(tags, tag)
		}
	}
	return b.ForTags(videoID, tags)
}

// BuildAll 所有 tier 的 spec，上傳時一律全部產出
func (b *RenditionSpecBuilder) BuildAll(videoID string) []domain.RenditionSpec {
	return b.Build(videoID, domain.TierFree, domain.TierStandard, domain.TierPremium)
}

// ForTags 指定 tag 的 spec，未知 tag 略過
func (b *RenditionSpecBuilder) ForTags(videoID string, tags []domain.RenditionTag) []domain.RenditionSpec {
	specs := make([]domain.RenditionSpec, 0, len(tags))
	for _, tag := range tags {
		p, ok := catalog[tag]
		if !ok {
			continue
		}
		spec := domain.RenditionSpec{
			Tag:          tag,
			Tier:         p.tier,
			Width:        p.width,
			Height:       p.height,
			VideoBitrate: p.videoBitrate,
			AudioBitrate: p.audioBitrate,
			Destination:  b.OutputLocation(videoID, tag),
			NameModifier: "_" + string(tag),
		}
		if p.clipped {
			spec.MaxDurationSeconds = b.previewSeconds
		}
		specs = append(specs, spec)
	}
	return specs
}

// Thumbnail 縮圖規格
func (b *RenditionSpecBuilder) Thumbnail(videoID string) *domain.ThumbnailSpec {
	return &domain.ThumbnailSpec{
		Width:       thumbnailWidth,
		Height:      thumbnailHeight,
		Destination: fmt.Sprintf("%s/%s/%s_thumbnail", b.prefix, thumbnailDir, videoID),
		MaxCaptures: 1,
	}
}

// OutputLocation <prefix>/<free|standard|premium>/<videoId>_<tag>.mp4
func (b *RenditionSpecBuilder) OutputLocation(videoID string, tag domain.RenditionTag) string {
	return fmt.Sprintf("%s/%s/%s_%s.mp4", b.prefix, catalog[tag].dir, videoID, tag)
}

// ParsedOutputs 一個 job 結果解析後的內容
type ParsedOutputs struct {
	Renditions      domain.Renditions
	ThumbnailURL    string
	DurationSeconds float64
	Rejected        []string
}

// ParseOutputs 依命名規則把輸出檔還原成 tag -> locator；目錄必須和 tag 的 tier 一致
func ParseOutputs(outputs []domain.JobOutput) ParsedOutputs {
	parsed := ParsedOutputs{Renditions: domain.Renditions{}}
	for _, out := range outputs {
		if out.DurationMs > 0 {
			if d := float64(out.DurationMs) / 1000; d > parsed.DurationSeconds {
				parsed.DurationSeconds = d
			}
		}
		if isThumbnail(out.LocationURI) {
			if parsed.ThumbnailURL == "" {
				parsed.ThumbnailURL = out.LocationURI
			}
			continue
		}
		tag, ok := parseRenditionTag(out)
		if !ok {
			parsed.Rejected = append(parsed.Rejected, out.LocationURI)
			continue
		}
		if _, dup := parsed.Renditions[tag]; !dup {
			parsed.Renditions[tag] = out.LocationURI
		}
	}
	return parsed
}

func parseRenditionTag(out domain.JobOutput) (domain.RenditionTag, bool) {
	if out.LocationURI == "" {
		return "", false
	}
	dir := path.Base(path.Dir(out.LocationURI))
	name := strings.TrimSuffix(path.Base(out.LocationURI), path.Ext(out.LocationURI))

	var tag domain.RenditionTag
	if explicit := domain.RenditionTag(out.Tag); explicit.Valid() {
		tag = explicit
	} else {
		for _, candidate := range domain.AllRenditionTags {
			if strings.HasSuffix(name, "_"+string(candidate)) {
				tag = candidate
				break
			}
		}
	}
	if tag == "" {
		return "", false
	}
	if catalog[tag].dir != dir {
		return "", false
	}
	return tag, true
}

func isThumbnail(loc string) bool {
	ext := strings.ToLower(path.Ext(loc))
	return path.Base(path.Dir(loc)) == thumbnailDir && (ext == ".jpg" || ext == ".jpeg" || ext == ".png")
}
