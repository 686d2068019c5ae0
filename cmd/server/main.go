package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/palemoky/battle-tanks/internal/config"
	"github.com/palemoky/battle-tanks/internal/logger"
	"github.com/palemoky/battle-tanks/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("加载配置文件失败，使用默认配置: %v", err)
		cfg = config.Default()
	}

	if err := logger.Init(cfg.Log.File); err != nil {
		log.Printf("初始化日志文件失败，输出到标准错误: %v", err)
	}
	defer logger.Close()

	// 创建服务器
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("创建服务器失败: %v", err)
	}

	// 优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("正在关闭服务器...")
		srv.Shutdown()
	}()

	log.Println("🎮 坦克大战服务器启动中...")
	if err := srv.Start(ctx); err != nil {
		log.Printf("服务器启动失败: %v", err)
		srv.Shutdown()
		logger.Close()
		os.Exit(1)
	}
	srv.Shutdown()
}
