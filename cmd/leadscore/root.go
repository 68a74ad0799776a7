package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rushteam/leadscore"
	"github.com/rushteam/leadscore/config"
	"github.com/rushteam/leadscore/core"
	"github.com/rushteam/leadscore/history"
	"github.com/rushteam/leadscore/store"
)

// app 保存一次命令执行的配置状态，每个命令树独立一份
type app struct {
	v       *viper.Viper
	cfgFile string
	debug   bool
	cfg     *config.AppConfig
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}
	root := &cobra.Command{
		Use:               "leadscore",
		Short:             "Predict whether a sales lead will convert and explain why.",
		Version:           leadscore.Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./leadscore.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "prints verbose logs")

	root.AddCommand(
		a.serveCmd(),
		a.predictCmd(),
		a.schemaCmd(),
		a.historyCmd(),
		versionCmd(),
	)
	return root
}

// setup 合并默认值、配置文件、环境变量与命令行参数，并初始化日志
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	initLogging(cfg.LogLevel, a.debug)
	return nil
}

func initLogging(level string, debug bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)
}

func (a *app) engine(ctx context.Context) (*leadscore.Engine, error) {
	return leadscore.New(ctx, a.cfg)
}

// openStore 按配置创建会话存储后端
func openStore(ctx context.Context, cfg config.SessionConfig) (core.Store, error) {
	switch cfg.Backend {
	case config.SessionRedis:
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
	case config.SessionMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Backend)
	}
}

// openHistory 在启用时打开预测历史，未启用返回 nil
func (a *app) openHistory(ctx context.Context) (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(ctx, a.cfg.History.Path)
}
