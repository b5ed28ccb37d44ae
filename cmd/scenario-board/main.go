package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/banshee-data/scenario.board/internal/board"
	"github.com/banshee-data/scenario.board/internal/config"
	"github.com/banshee-data/scenario.board/internal/db"
	"github.com/banshee-data/scenario.board/internal/experiment"
	"github.com/banshee-data/scenario.board/internal/tab"
	"github.com/banshee-data/scenario.board/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to a board JSON config (defaults apply when empty)")
	listen       = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen   = flag.String("grpc-listen", "", "gRPC LayoutService listen address (overrides config)")
	disableGRPC  = flag.Bool("disable-grpc", false, "Do not start the gRPC LayoutService")
	dbPath       = flag.String("db", "", "SQLite database path (overrides config)")
	experiments  = flag.String("experiments", "", "Comma-separated experiment directories (overrides config)")
	allowedRoots = flag.String("allowed-roots", "", "Comma-separated directories experiments must live under")
	assetsHost   = flag.String("assets-host", "", "echarts assets host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.BoardConfig, error) {
	cfg := config.EmptyBoardConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadBoardConfig(*configPath); err != nil {
			return nil, err
		}
	}
	if *listen != "" {
		cfg.Listen = listen
	}
	if *grpcListen != "" {
		cfg.GRPCListen = grpcListen
	}
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	if *assetsHost != "" {
		cfg.AssetsHost = assetsHost
	}
	if dirs := splitList(*experiments); len(dirs) > 0 {
		cfg.ExperimentDirs = dirs
	}
	if roots := splitList(*allowedRoots); len(roots) > 0 {
		cfg.AllowedRoots = roots
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	data, err := experiment.LoadAll(cfg.ExperimentDirs, cfg.AllowedRoots)
	if err != nil {
		log.Fatalf("failed to load experiments: %v", err)
	}
	log.Printf("loaded %d experiments", len(data.Experiments))

	boardDB, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer boardDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := tab.NewLoop()
	publisher := tab.NewPublisher(tab.DefaultSubscriberBuffer)
	defer publisher.Close()

	controller := tab.NewController(board.ControllerConfig(cfg, loop, board.NewRenderLog(boardDB)))
	controller.AddListener(publisher.Listener())

	var wg sync.WaitGroup

	// the loop owns every controller mutation from here on
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("controller loop failed: %v", err)
		}
		log.Print("controller loop terminated")
	}()

	if err := loop.Do(ctx, func() error {
		controller.SetFileData(data)
		return nil
	}); err != nil {
		log.Fatalf("failed to initialise scenario tab: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := board.NewWebServer(board.Config{
			Address:    cfg.GetListen(),
			Controller: controller,
			Loop:       loop,
			Publisher:  publisher,
			DB:         boardDB,
			AssetsHost: cfg.GetAssetsHost(),
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server failed: %v", err)
			stop()
		}
	}()

	if !*disableGRPC {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lis, err := net.Listen("tcp", cfg.GetGRPCListen())
			if err != nil {
				log.Printf("failed to listen for gRPC: %v", err)
				stop()
				return
			}
			if err := board.ServeRPC(ctx, lis, board.NewRPCServer(controller, loop, publisher)); err != nil {
				log.Printf("gRPC server failed: %v", err)
				stop()
			}
		}()
	}

	wg.Wait()
	log.Printf("%s stopped", version.String())
}
