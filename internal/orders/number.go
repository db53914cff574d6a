package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// OrderNumberPattern matches every number NewOrderNumber produces.
var OrderNumberPattern = regexp.MustCompile(`^ORD\d+$`)

var thousand = big.NewInt(1000)

// NewOrderNumber returns ORD<unix-ms><3 random digits>. Collisions are possible
// under concurrency; the unique index catches them and the caller regenerates.
func NewOrderNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, thousand)
	if err != nil {
		n = big.NewInt(now.UnixNano() % 1000)
	}
	return fmt.Sprintf("ORD%d%03d", now.UnixMilli(), n.Int64())
}
