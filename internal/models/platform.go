package models

// Platform is a supported publishing target. The set is closed: adding a
// platform means adding a constant here and an adapter field in the
// platform registry.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformThreads   Platform = "threads"
	PlatformTwitter   Platform = "twitter"
	PlatformTelegram  Platform = "telegram"
	PlatformYouTube   Platform = "youtube"
)

var Platforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformThreads,
	PlatformTwitter,
	PlatformTelegram,
	PlatformYouTube,
}

// ParsePlatform maps a stored slug onto a known platform.
func ParsePlatform(slug string) (Platform, bool) {
	for _, p := range Platforms {
		if string(p) == slug {
			return p, true
		}
	}
	return "", false
}

// SupportsNativeThreads reports whether the platform can chain posts as
// replies, so a thread is delivered one segment at a time.
func (p Platform) SupportsNativeThreads() bool {
	return p == PlatformThreads || p == PlatformTwitter
}

func (p Platform) String() string {
	return string(p)
}
