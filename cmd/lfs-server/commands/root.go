package commands

import (
	"fmt"
	"log/slog"

	"lfsgate/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// settings 在 PersistentPreRunE 中加载，供子命令使用
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "lfs-server",
	Short: "lfsgate: Git LFS server with pluggable storage and SSH gateway",
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgFile); err != nil {
			return err
		}
		var err error
		settings, err = config.Current()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		slog.SetDefault(settings.NewLogger())
		return nil
	},
	SilenceUsage: true,
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.lfsgate/config.yaml)")

	// 常用参数可以直接用 flag 覆盖配置文件
	rootCmd.PersistentFlags().Int("port", 0, "HTTP listen port")
	rootCmd.PersistentFlags().String("store", "", "store type (disk, s3, s3_direct, minio, chunked)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	mustBind("port", "port")
	mustBind("store.type", "store")
	mustBind("log.level", "log-level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
	}
}
