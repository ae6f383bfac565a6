package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
)

const (
	idPrefix          = "TR"
	idDigits          = 4
	DefaultIDAttempts = 5

	// MaxIDLength matches the orders.id column width.
	MaxIDLength = 8
)

var idSpace = big.NewInt(10_000)

// IDGenerator returns a candidate order id. Uniqueness is enforced by the
// primary key, not by the generator.
type IDGenerator func() (string, error)

// RandomID yields TR followed by four random digits.
func RandomID() (string, error) {
	n, err := rand.Int(rand.Reader, idSpace)
	if err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return fmt.Sprintf("%s%0*d", idPrefix, idDigits, n.Int64()), nil
}

func isDuplicateOrderID(err error) bool {
	return dbpkg.IsUniqueViolation(err, "orders_pkey") || dbpkg.IsUniqueViolation(err, "orders.id")
}
