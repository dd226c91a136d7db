package cache

import (
	"strconv"
	"strings"
	"testing"

	"banksystem/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, portStr, _ := strings.Cut(mr.Addr(), ":")
	port, _ := strconv.Atoi(portStr)

	client, err := InitRedis(&config.RedisConfig{Host: host, Port: port})
	if err != nil {
		t.Fatalf("InitRedis failed: %v", err)
	}
	defer client.Close()

	mr.Close()
	if _, err := InitRedis(&config.RedisConfig{Host: host, Port: port}); err == nil {
		t.Fatal("expected error when Redis is down")
	}
}
