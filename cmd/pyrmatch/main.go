package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoeyai/pyrmatch/internal/logger"
	"github.com/zoeyai/pyrmatch/pkg/auto/screen"
	"github.com/zoeyai/pyrmatch/pkg/config"
	"github.com/zoeyai/pyrmatch/pkg/grpc"
	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
	"github.com/zoeyai/pyrmatch/pkg/vision/cvmat"
	"github.com/zoeyai/pyrmatch/pkg/vision/overlay"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = grpc.Version
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// cliOutput -json 模式下输出的结果
type cliOutput struct {
	Found      bool                `json:"found"`
	Completed  bool                `json:"completed"`
	Depth      int                 `json:"depth"`
	StoppedAt  int                 `json:"stopped_at"`
	ElapsedMs  float64             `json:"elapsed_ms"`
	Template   image.Point         `json:"template"`
	Candidates []cv.MatchCandidate `json:"candidates"`
	Levels     []cv.LevelStats     `json:"levels"`
	Screen     []screen.Match      `json:"screen,omitempty"`
	OpenCV     *cv.MatchCandidate  `json:"opencv,omitempty"`
}

func main() {
	// 命令行参数
	var (
		input       = flag.String("input", "", "搜索图像路径")
		template    = flag.String("template", "", "模板图像路径")
		levels      = flag.Int("levels", cv.DefaultLevels, "金字塔降采样次数")
		coarse      = flag.Float64("coarse", cv.DefaultCoarseThreshold, "每层截断阈值")
		final       = flag.Float64("final", cv.DefaultFinalThreshold, "最终接受阈值")
		workers     = flag.Int("workers", 0, "并行协程数 (0 表示 CPU 逻辑核数)")
		maxResults  = flag.Int("max", 0, "最大结果数量 (0 表示不限制)")
		output      = flag.String("output", "", "保存标注结果 PNG")
		useOpenCV   = flag.Bool("opencv", false, "同时用 OpenCV 穷举匹配对照，并用 OpenCV 绘制标注")
		fromScreen  = flag.Bool("screen", false, "截取屏幕作为搜索图像")
		serve       = flag.Bool("serve", false, "启动 gRPC 匹配服务")
		listen      = flag.String("listen", "", "gRPC 监听地址 (例: localhost:50051)")
		metricsAddr = flag.String("metrics", "", "Prometheus 指标 HTTP 地址 (例: :9090)")
		configDir   = flag.String("config-dir", "", "配置目录 (默认 ~/.pyrmatch)")
		envFile     = flag.String("env", ".env", ".env 文件路径")
		saveConfig  = flag.Bool("save", false, "保存配置到本地")
		jsonOut     = flag.Bool("json", false, "以 JSON 输出结果")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本
	if *showVersion {
		printVersion()
		return
	}

	// 显示帮助
	if *showHelp {
		printHelp()
		return
	}

	mgr := config.GetDefaultManager()
	if *configDir != "" {
		mgr = config.NewManagerWithDir(*configDir)
	}

	// 配置文件 -> .env -> 环境变量
	cfg, err := mgr.Resolve(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 命令行参数优先级最高
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "levels":
			cfg.Levels = *levels
		case "coarse":
			cfg.CoarseThreshold = *coarse
		case "final":
			cfg.FinalThreshold = *final
		case "workers":
			cfg.Workers = *workers
		case "max":
			cfg.MaxResults = *maxResults
		case "listen":
			cfg.ListenAddr = *listen
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] 参数无效: %v\n", err)
		os.Exit(1)
	}
	logger.Default().SetLevel(logger.ParseLevel(cfg.LogLevel))

	// 保存配置
	if *saveConfig {
		if err := mgr.Save(cfg); err != nil {
			logger.Warn("保存配置失败: %v", err)
		} else {
			logger.Info("配置已保存到 %s", mgr.GetConfigFile())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		if err := runServer(ctx, cfg, *metricsAddr); err != nil {
			logger.Error("服务异常退出: %v", err)
			os.Exit(1)
		}
		return
	}

	if *template == "" || (*input == "" && !*fromScreen) {
		fmt.Fprintln(os.Stderr, "[ERROR] 缺少 -template，以及 -input 或 -screen")
		printHelp()
		os.Exit(1)
	}

	out, err := runMatch(ctx, cfg, *input, *template, *fromScreen, *useOpenCV, *output)
	if err != nil {
		logger.Error("匹配失败: %v", err)
		os.Exit(1)
	}
	printResult(out, *jsonOut)
}

// runMatch 执行一次命令行匹配
func runMatch(ctx context.Context, cfg *config.MatchConfig, input, template string, fromScreen, useOpenCV bool, output string) (*cliOutput, error) {
	tpl, err := cv.ReadImageGray(template)
	if err != nil {
		return nil, err
	}

	var (
		src  *cv.Gray
		meta screen.CaptureMeta
	)
	if fromScreen {
		logger.Info("截取屏幕 (显示器数量: %d)", screen.GetDisplayCount())
		src, meta, err = screen.Capture(nil)
	} else {
		src, err = cv.ReadImageGray(input)
	}
	if err != nil {
		return nil, err
	}

	m, err := cv.NewPyramidMatcher(cv.WithOptions(cfg.MatchOptions()))
	if err != nil {
		return nil, err
	}
	report, err := m.Match(ctx, src, tpl)
	if err != nil {
		return nil, err
	}

	out := &cliOutput{
		Found:      report.Found(),
		Completed:  report.Completed,
		Depth:      report.Depth,
		StoppedAt:  report.StoppedAt,
		ElapsedMs:  float64(report.Elapsed.Microseconds()) / 1000,
		Template:   report.TemplateSize,
		Candidates: report.Candidates,
		Levels:     report.Levels,
	}
	if fromScreen {
		out.Screen = screen.Locate(report.Candidates, report.TemplateSize, meta)
	}

	if useOpenCV {
		start := time.Now()
		best, err := cvmat.BestMatch(src, tpl)
		if err != nil {
			return nil, fmt.Errorf("OpenCV 对照失败: %w", err)
		}
		logger.LogEvent("OCV", best.Score > cfg.FinalThreshold,
			float64(time.Since(start).Microseconds())/1000,
			fmt.Sprintf("(%d,%d) score=%.4f", best.X, best.Y, best.Score))
		out.OpenCV = &best
	}

	if output != "" {
		if err := saveAnnotated(output, src, report, useOpenCV); err != nil {
			return nil, err
		}
		logger.Info("标注结果已保存到 %s", output)
	}
	return out, nil
}

// saveAnnotated 保存标注图像
func saveAnnotated(output string, src *cv.Gray, report *cv.MatchReport, useOpenCV bool) error {
	if useOpenCV {
		mat, err := cvmat.Annotate(src, report.Candidates, report.TemplateSize)
		if err != nil {
			return err
		}
		defer mat.Close()
		return cvmat.WriteImage(output, mat)
	}

	img, err := overlay.Draw(src.ToImage(), report.Candidates, report.TemplateSize, overlay.DefaultStyle)
	if err != nil {
		return err
	}
	return overlay.SavePNG(output, img)
}

// runServer 运行 gRPC 服务直到收到退出信号
func runServer(ctx context.Context, cfg *config.MatchConfig, metricsAddr string) error {
	metrics := grpc.NewMetrics()
	srv, err := grpc.NewServer(cfg, metrics)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", cfg.ListenAddr, err)
	}

	var httpSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		httpSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("指标监听: %s/metrics", metricsAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("指标服务异常: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	fmt.Println("========================================")
	fmt.Printf("  pyrmatch v%s\n", Version)
	fmt.Println("========================================")
	logger.Info("按 Ctrl+C 退出")

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("正在停止服务...")
		srv.Stop()
		err = <-errCh
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	logger.Info("已退出")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// printResult 打印匹配结果
func printResult(out *cliOutput, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			logger.Error("输出 JSON 失败: %v", err)
		}
		return
	}

	if !out.Found {
		fmt.Printf("未找到匹配 (共 %d 层, 停止于第 %d 层, 耗时 %.1fms)\n", out.Depth, out.StoppedAt, out.ElapsedMs)
		return
	}
	fmt.Printf("找到 %d 个匹配 (模板 %dx%d, 耗时 %.1fms)\n", len(out.Candidates), out.Template.X, out.Template.Y, out.ElapsedMs)
	for i, c := range out.Candidates {
		fmt.Printf("  #%d  (%d, %d)  score=%.4f", i+1, c.X, c.Y, c.Score)
		if i < len(out.Screen) {
			fmt.Printf("  屏幕中心=(%d, %d)", out.Screen[i].Center.X, out.Screen[i].Center.Y)
		}
		fmt.Println()
	}
	if out.OpenCV != nil {
		fmt.Printf("  OpenCV 最佳: (%d, %d)  score=%.4f\n", out.OpenCV.X, out.OpenCV.Y, out.OpenCV.Score)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("pyrmatch v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("pyrmatch - 金字塔模板匹配工具")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  pyrmatch [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 在截图中查找按钮")
	fmt.Println("  pyrmatch -input screen.png -template button.png -levels 3")
	fmt.Println()
	fmt.Println("  # 在当前屏幕上查找，并保存标注结果")
	fmt.Println("  pyrmatch -screen -template button.png -output result.png")
	fmt.Println()
	fmt.Println("  # 启动匹配服务并暴露指标")
	fmt.Println("  pyrmatch -serve -listen :50051 -metrics :9090")
	fmt.Println()
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}
