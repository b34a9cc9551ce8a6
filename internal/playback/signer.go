// Package playback issues signed CloudFront cookies that grant time-limited
// access to processed HLS renditions.
package playback

import (
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"
)

// DefaultCookieTTL bounds how long a playback grant stays valid.
const DefaultCookieTTL = 10 * time.Minute

// PlaybackGrant is what a player needs to fetch a rendition: the playlist URL
// plus the cookies that authorize the playlist and its segments.
type PlaybackGrant struct {
	PlaylistURL string
	Cookies     []*http.Cookie
	ExpiresAt   time.Time
}

// Signer signs playback grants against a CloudFront distribution.
type Signer struct {
	domain string
	cookie *sign.CookieSigner
	ttl    time.Duration
}

// NewSigner loads the RSA private key at keyPath and builds a Signer for the
// given distribution domain and key pair ID.
func NewSigner(domain, keyPairID, keyPath string, ttl time.Duration) (*Signer, error) {
	privKey, err := sign.LoadPEMPrivKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading cloudfront private key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCookieTTL
	}
	return &Signer{
		domain: domain,
		cookie: sign.NewCookieSigner(keyPairID, privKey),
		ttl:    ttl,
	}, nil
}

// SignPlayback grants access to every object under <videoID>/<resolution>/ so
// the player can fetch both the playlist and its segments with one cookie set.
func (s *Signer) SignPlayback(videoID, resolution string) (*PlaybackGrant, error) {
	expires := time.Now().Add(s.ttl)
	resource := fmt.Sprintf("https://%s/%s/%s/*", s.domain, videoID, resolution)

	policy := sign.NewCannedPolicy(resource, expires)
	cookies, err := s.cookie.SignWithPolicy(policy)
	if err != nil {
		return nil, fmt.Errorf("signing playback cookies: %w", err)
	}

	return &PlaybackGrant{
		PlaylistURL: fmt.Sprintf("https://%s/%s/%s/playlist.m3u8", s.domain, videoID, resolution),
		Cookies:     cookies,
		ExpiresAt:   expires,
	}, nil
}
