package utils

import (
	"crypto/md5"
	"fmt"
	"hash/fnv"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// Bucket maps input to a stable bucket in [0, buckets). Used for
// deterministic dataset split assignment.
func Bucket(input string, buckets uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte(input))
	return h.Sum32() % buckets
}
