// Package barcode implements the scanned-token grammar. Parsing is pure
// and stateless: a scanned string either resolves to a (normalized SKU,
// unit token) pair or is rejected with a typed, operator-correctable
// error. Token shapes matter downstream — device tokens and generic
// suffixes participate in global uniqueness, auto-generated Loose tokens
// do not — so the shapes here must not drift.
package barcode

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"packscan/apperr"
	"packscan/registry"
)

// Classifier resolves the scan classification of a normalized SKU.
type Classifier interface {
	Classify(skuNorm string) registry.SKUType
}

// Scan is a successfully parsed barcode.
type Scan struct {
	SKU   string // normalized SKU
	Token string // unit token to assign
	Type  registry.SKUType
}

// Device form: SKU, dash, single letter, 1-4 digits (e.g. AT0001-A001).
var deviceRx = regexp.MustCompile(`^\s*([A-Za-z]{2,}\d+)\s*-\s*([A-Za-z])\s*(\d{1,4})\s*$`)

// Generic form: SKU with optional 1-10 char alphanumeric suffix.
var genericRx = regexp.MustCompile(`^\s*([A-Za-z]{2,}\d+)(?:\s*-\s*([A-Za-z0-9]{1,10}))?\s*$`)

// nowMillis is swappable in tests that pin auto-generated Loose tokens.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Parse evaluates the grammar rules in strict order, first match wins.
func Parse(code string, classify Classifier) (Scan, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	// Rule 1: device form.
	if m := deviceRx.FindStringSubmatch(code); m != nil {
		sku := registry.Normalize(m[1])
		typ := classify.Classify(sku)
		if typ == registry.TypeNoScan {
			return Scan{}, errNoScan()
		}
		token := m[2] + zeroPad(m[3], 4)
		return Scan{SKU: sku, Token: token, Type: typ}, nil
	}

	// Rule 2: generic form, suffix optional.
	if m := genericRx.FindStringSubmatch(code); m != nil {
		sku := registry.Normalize(m[1])
		suffix := m[2]
		switch typ := classify.Classify(sku); typ {
		case registry.TypeNoScan:
			return Scan{}, errNoScan()
		case registry.TypeLoose:
			token := suffix
			if token == "" {
				token = autoToken()
			}
			return Scan{SKU: sku, Token: token, Type: typ}, nil
		default: // Compulsory or Unknown
			if suffix != "" {
				return Scan{}, apperr.BadRequest("Compulsory SKU requires device format (AT0001-A001).")
			}
			return Scan{}, apperr.BadRequest("Invalid barcode. Use AT0001-A001 or AT0100 / AT0100-ABC")
		}
	}

	return Scan{}, apperr.BadRequest("Invalid barcode.")
}

func errNoScan() error {
	return apperr.Conflict("This SKU is configured as NoScan (Extras). Do not scan.")
}

// autoToken generates a token for a bare Loose scan, e.g. L123456. Loose
// tokens are exempt from uniqueness so millisecond wraparound is fine.
func autoToken() string {
	return fmt.Sprintf("L%06d", nowMillis()%1_000_000)
}

func zeroPad(digits string, width int) string {
	if len(digits) >= width {
		return digits
	}
	return strings.Repeat("0", width-len(digits)) + digits
}
