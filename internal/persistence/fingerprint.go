package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/soundmesh/soundmesh-core/internal/infrastructure/config"
)

// ComputeFingerprint returns a stable SHA-256 hex digest of the configured
// inventory. Any change to the set of zones, clients, or streams, their
// identity fields, or their wiring produces a different fingerprint.
//
// The digest covers entity counts plus one canonical line per entity, with
// entities sorted by ID so YAML ordering does not affect the result.
func ComputeFingerprint(inv config.InventoryConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "zones=%d;clients=%d;streams=%d\n",
		len(inv.Zones), len(inv.Clients), len(inv.Streams))

	lines := make([]string, 0, len(inv.Zones))
	for _, z := range inv.Zones {
		lines = append(lines, fmt.Sprintf("zone|%s|%s|%s|%s|%s|%s",
			z.ID, z.Name, z.DefaultStream,
			z.KNX.Volume, z.KNX.Mute, z.KNX.Playing))
	}
	writeSorted(&b, lines)

	lines = lines[:0]
	for _, c := range inv.Clients {
		lines = append(lines, fmt.Sprintf("client|%s|%s|%s|%s|%s|%s|%s",
			c.ID, c.Name, c.Zone, c.SnapcastID,
			c.KNX.Volume, c.KNX.Mute, c.KNX.Connected))
	}
	writeSorted(&b, lines)

	lines = lines[:0]
	for _, s := range inv.Streams {
		lines = append(lines, fmt.Sprintf("stream|%s|%s", s.ID, s.SnapcastStream))
	}
	writeSorted(&b, lines)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeSorted(b *strings.Builder, lines []string) {
	sort.Strings(lines)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}
