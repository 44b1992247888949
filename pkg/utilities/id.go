package utilities

import (
	"os"
	"strconv"

	"github.com/segmentio/ksuid"
)

// NewRequestID returns a sortable, globally unique id for tagging HTTP
// requests in logs.
func NewRequestID() string {
	return ksuid.New().String()
}

// SnowflakeNodeFromEnv returns the node id configured in SNOWFLAKE_NODE. Every
// process that issues attestation nonces for the same verifier needs its own
// node id. Missing or invalid values fall back to node 1.
func SnowflakeNodeFromEnv() int64 {
	v := os.Getenv("SNOWFLAKE_NODE")
	if v == "" {
		return 1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 || n > 1023 {
		return 1
	}
	return n
}
