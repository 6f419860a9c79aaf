package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"storepulse/internal/types"
)

// fingerprintVersion is baked into every hash so bumping it forces a full
// re-enrichment of all profiles on the next run.
const fingerprintVersion = "v1"

// Fingerprint computes a stable content hash over the product fields that
// feed enrichment. Products whose fingerprint matches the stored profile are
// skipped without any enrichment calls.
func Fingerprint(p types.CatalogProduct) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%d",
		fingerprintVersion, p.Title, p.Description, p.Vendor, p.ProductType,
		strings.Join(p.Tags, ","), p.PriceCents)
	return hex.EncodeToString(h.Sum(nil))
}
