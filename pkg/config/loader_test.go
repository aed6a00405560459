package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
jwt_secret: ${TEST_CHAT_SYNC_SECRET}
mongo:
  host: localhost
  port: 27017
redis:
  addr: localhost:6379
view_cache:
  ttl: 30s
share:
  scheme: "myapp://"
  host: "example.com"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_sync.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_CHAT_SYNC_SECRET", "from-env")
	dir := writeConfig(t, testYAML)

	cfg, err := LoadConfig[ChatSync]("chat_sync", dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWTSecret, "${} 以環境變數展開")
	assert.Equal(t, "localhost", cfg.Mongo.Host)
	assert.Equal(t, 27017, cfg.Mongo.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30*time.Second, cfg.ViewCache.TTL)
	assert.Equal(t, "myapp://", cfg.Share.Scheme)

	// defaults
	assert.Equal(t, "chat_sync", cfg.Mongo.Database)
	assert.Equal(t, 8, cfg.Batch.Size)
	assert.Equal(t, 20, cfg.Batch.ProgressiveThreshold)
	assert.Equal(t, 100, cfg.ViewCache.UnreadSize)
	assert.Equal(t, "chat.conversation.summary", cfg.Kafka.Topic)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig[ChatSync]("chat_sync", t.TempDir())
	assert.Error(t, err)
}

func TestGetPath(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "marker.env"), nil, 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	path, err := GetPath("marker.env", 5)
	require.NoError(t, err)
	assert.Equal(t, "../.././marker.env", path)

	_, err = GetPath("marker.env", 2)
	assert.Error(t, err)
}

func TestGetRedisSetting(t *testing.T) {
	t.Setenv("REDIS_MASTER_NAME", "chat-master")
	t.Setenv("REDIS_SENTINEL1_IP", "10.0.0.1")
	t.Setenv("REDIS_SENTINEL1_PORT", "26379")
	t.Setenv("REDIS_SENTINEL2_IP", "10.0.0.2")

	master, addrs := GetRedisSetting()

	assert.Equal(t, "chat-master", master)
	assert.Contains(t, addrs, "10.0.0.1:26379")
	assert.NotContains(t, addrs, "10.0.0.2:")
}
