package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	pkgerrors "github.com/angelmondragon/settlement-core/pkg/errors"
)

const (
	codePrefix       = "BLUE"
	maxCodeAttempts  = 8
	codeDigitsModulo = 100000

	// a code can still be taken by a concurrent insert after nextCode checked it
	maxCreateAttempts   = 3
	orderCodeConstraint = "orders_code_key"
)

var errCodeTaken = errors.New("order code taken")

// CodeGenerator returns a candidate order code.
type CodeGenerator func() string

// RandomCode yields BLUE followed by five random digits.
func RandomCode() string {
	return fmt.Sprintf("%s%05d", codePrefix, rand.IntN(codeDigitsModulo))
}

func (s *service) nextCode(ctx context.Context, repo Repository) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := s.codes()
		taken, err := repo.CodeExists(ctx, code)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check order code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique order code")
}
