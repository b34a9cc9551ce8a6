package storage

import "strings"

// resolutionLabels maps transcoder output resolutions to quality labels.
// Keys the transcoder emits that are not listed here are skipped, so new
// encodings can ship before this table learns about them.
var resolutionLabels = map[string]string{
	"1920x1080": "1080p",
	"1280x720":  "720p",
	"854x480":   "480p",
	"640x360":   "360p",
}

// ResolutionForQuality returns the resolution string for a quality label.
func ResolutionForQuality(quality string) (string, bool) {
	for resolution, label := range resolutionLabels {
		if label == quality {
			return resolution, true
		}
	}
	return "", false
}

// RenditionsFromKeys maps processed-bucket keys to quality labels.
// A rendition counts only when its playlist exists at
// <videoID>/<resolution>/playlist.m3u8.
func RenditionsFromKeys(videoID string, keys []string) map[string]string {
	renditions := make(map[string]string)

	for _, key := range keys {
		if !strings.HasSuffix(key, "playlist.m3u8") {
			continue
		}

		parts := strings.Split(key, "/")
		if len(parts) < 3 || parts[0] != videoID {
			continue
		}

		label, ok := resolutionLabels[parts[1]]
		if !ok {
			continue
		}

		renditions[label] = key
	}

	return renditions
}
