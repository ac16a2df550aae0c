package service

import (
	"testing"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestContentResolve(t *testing.T) {
	src := models.TextSource{
		Content: "default",
		Variants: models.Variants{
			{Language: "de", Text: "german"},
			{Platform: models.PlatformTwitter, Text: "short"},
			{Platform: models.PlatformTwitter, Language: "de", Text: "kurz"},
		},
	}

	tests := []struct {
		name     string
		platform models.Platform
		language string
		want     string
	}{
		{"platform and language", models.PlatformTwitter, "de", "kurz"},
		{"platform only", models.PlatformTwitter, "en", "short"},
		{"language only", models.PlatformFacebook, "de", "german"},
		{"default", models.PlatformFacebook, "en", "default"},
		{"no account language", models.PlatformTelegram, "", "default"},
	}

	s := NewContentService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &models.SocialAccount{Platform: string(tt.platform), Language: tt.language}
			assert.Equal(t, tt.want, s.Resolve(src, account))
		})
	}
}

func TestContentResolveWithoutVariants(t *testing.T) {
	s := NewContentService()
	got := s.Resolve(models.TextSource{Content: "hello"}, &models.SocialAccount{Platform: "threads", Language: "fr"})
	assert.Equal(t, "hello", got)
}
