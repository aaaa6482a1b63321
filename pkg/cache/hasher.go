package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BuildSolveKey строит ключ кэша для результата решения
func BuildSolveKey(graphHash, algorithm string) string {
	return fmt.Sprintf("solve:%s:%s", algorithm, graphHash)
}

// QuickHash быстрый хеш для произвольных данных
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
