package redis

import (
	_ "embed"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed scripts/release_lock.lua
	releaseLockLua string
	//go:embed scripts/sliding_window.lua
	slidingWindowLua string
)

// Scripts are loaded once per process; Run falls back from EVALSHA to EVAL
// on a cold server.
var (
	releaseLockScript   = redis.NewScript(releaseLockLua)
	slidingWindowScript = redis.NewScript(slidingWindowLua)
)
