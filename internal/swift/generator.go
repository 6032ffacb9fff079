package swift

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateReference produces a unique transaction reference, combining a
// timestamp with random bytes for uniqueness (as the teacher's generator
// did for outbound MT103 traffic). Only the low eight digits of the
// Unix-nanosecond timestamp are used, so a prefix of up to four
// characters keeps the result within field 20's 16-character limit.
func GenerateReference(prefix string) (string, error) {
	randomBytes := make([]byte, 2)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("swift: generating reference: %w", err)
	}
	return fmt.Sprintf("%s%08d%s", prefix, time.Now().UnixNano()%100000000, hex.EncodeToString(randomBytes)), nil
}
