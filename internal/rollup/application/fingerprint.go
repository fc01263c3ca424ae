package application

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	roster "solarops/internal/roster/domain"
	"solarops/internal/rollup/domain/series"
)

// Fingerprint identifies a fetch cycle by its parameters: device set,
// window and granularity. There is no cancel primitive; a new cycle
// supersedes an old one, and callers compare the fingerprint of a
// completed cycle against the currently desired one before applying
// results ("last fingerprint wins" at the call site).
func Fingerprint(devices []roster.Device, window series.Window, g series.Granularity) string {
	serials := make([]string, 0, len(devices))
	for _, device := range devices {
		serials = append(serials, device.Serial)
	}
	payload := fmt.Sprintf("%s|%s|%s|%s",
		strings.Join(serials, ","),
		series.EncodeDateTime(window.Start),
		series.EncodeDateTime(window.End),
		g,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:8])
}
