package service

import (
	"github.com/maheshrc27/publishflow/internal/models"
)

// ContentService picks the text an account receives. The most specific
// variant wins: platform and language, then platform, then language, then
// the default content.
type ContentService struct{}

func NewContentService() *ContentService {
	return &ContentService{}
}

func (s *ContentService) Resolve(src models.TextSource, account *models.SocialAccount) string {
	platform := models.Platform(account.Platform)
	language := account.Language

	best, bestRank := src.Content, 0
	for _, v := range src.Variants {
		rank := variantRank(v, platform, language)
		if rank > bestRank {
			best, bestRank = v.Text, rank
		}
	}
	return best
}

func variantRank(v models.TextVariant, platform models.Platform, language string) int {
	platformMatch := v.Platform != "" && v.Platform == platform
	languageMatch := v.Language != "" && language != "" && v.Language == language
	switch {
	case platformMatch && languageMatch:
		return 3
	case platformMatch && v.Language == "":
		return 2
	case languageMatch && v.Platform == "":
		return 1
	}
	return 0
}
