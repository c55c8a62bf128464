package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 LFS_JWT_SECRET 覆盖 jwt.secret
const EnvPrefix = "LFS"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. /etc/lfsgate
		viper.AddConfigPath("/etc/lfsgate")
		// 3. 用户主目录下的 .lfsgate
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".lfsgate"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (LFS_JWT_SECRET, LFS_STORE_TYPE 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错，可能全部来自环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("no config file found, using defaults and environment")
		} else {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		slog.Info("using config file", "path", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("port", 8080)
	viper.SetDefault("base_url", "http://localhost:8080/")
	viper.SetDefault("private", true)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.algorithm", "HS256")
	viper.SetDefault("jwt.issuer", "lfsgate")
	viper.SetDefault("jwt.expires_in", "30m")

	// 存储默认值；未使用的选项保持空值，只是为了让环境变量能覆盖它们
	viper.SetDefault("store.type", "disk")
	viper.SetDefault("store.options.path", "")
	viper.SetDefault("store.options.bucket", "")
	viper.SetDefault("store.options.endpoint", "")
	viper.SetDefault("store.options.region", "")
	viper.SetDefault("store.options.access_key", "")
	viper.SetDefault("store.options.secret_key", "")
	viper.SetDefault("store.options.use_ssl", false)
	viper.SetDefault("store.options.storage_class", "STANDARD")
	viper.SetDefault("store.options.driver", "postgres")
	viper.SetDefault("store.options.dsn", "")
	viper.SetDefault("store.options.chunk_size", 0)
	viper.SetDefault("store.cache.redis_url", "")
	viper.SetDefault("store.cache.ttl", "10m")

	viper.SetDefault("authenticator.type", "none")
	viper.SetDefault("authenticator.options.username", "")
	viper.SetDefault("authenticator.options.password", "")
	viper.SetDefault("authenticator.options.url", "")
	viper.SetDefault("authenticator.options.timeout", "10s")

	viper.SetDefault("ssh.enabled", false)
	viper.SetDefault("ssh.port", 2222)
	viper.SetDefault("ssh.ip", "0.0.0.0")
	viper.SetDefault("ssh.key.private", "")
	viper.SetDefault("ssh.key.public", "")
}
