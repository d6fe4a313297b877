// Command idlwatch is the interface-definition monitoring service.
//
// Usage:
//
//	idlwatch -config idlwatch.yaml     # serve the HTTP API
//	idlwatch -mcp                      # additionally serve MCP over stdio
//	idlwatch -once                     # run one pass and exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"idlwatch/api"
	"idlwatch/idl"
	"idlwatch/internal/config"
	"idlwatch/internal/dbopen"
	"idlwatch/internal/store"
	"idlwatch/monitor"
	"idlwatch/notify"
)

func main() {
	configPath := flag.String("config", "", "path to idlwatch.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	serveMCP := flag.Bool("mcp", false, "also serve MCP tools over stdio")
	once := flag.Bool("once", false, "run one monitoring and fan-out pass, print the result, exit")
	flag.Parse()

	godotenv.Load()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *serveMCP, *once); err != nil {
		logger.Error("idlwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, serveMCP, once bool) error {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	db, err := dbopen.Open(cfg.Database.Path, dbopen.WithMkdirAll())
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.NewStore(db)
	if err := st.Init(); err != nil {
		return err
	}

	reader := idl.NewReader(
		idl.RPCLookup(rpc.New(cfg.RPC.Endpoint)),
		idl.ReaderConfig{
			MaxAttempts: cfg.RPC.MaxAttempts,
			BaseBackoff: cfg.RPC.BaseBackoff,
		}, logger)

	svc := monitor.NewService(st, reader, monitor.Config{
		Concurrency: cfg.Monitor.Concurrency,
	}, logger)

	senders := map[string]notify.Sender{
		store.ChannelWebhook: notify.NewWebhookSender(nil),
	}
	if cfg.Notify.TelegramBotToken != "" {
		senders[store.ChannelTelegram] = notify.NewTelegramSender(cfg.Notify.TelegramBotToken, nil)
	} else {
		logger.Warn("telegram bot token not set, telegram channel disabled")
	}
	fanout := notify.NewFanout(st, senders, notify.Config{
		PreviewLimit:  cfg.Notify.PreviewLimit,
		Concurrency:   cfg.Notify.Concurrency,
		DeliveryDelay: cfg.Notify.DeliveryDelay,
	}, logger)

	if once {
		return runOnce(ctx, svc, fanout)
	}

	server, err := api.NewServer(api.Config{
		Listen: cfg.Listen,
		APIKey: cfg.APIKey,
	}, st, svc, fanout, logger)
	if err != nil {
		return err
	}

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "idlwatch",
			Version: "1.0.0",
		}, nil)
		server.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("mcp server", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runOnce executes one full cycle and prints the combined result to
// stdout as JSON.
func runOnce(ctx context.Context, svc *monitor.Service, fanout *notify.Fanout) error {
	run, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	notifications := make(map[string]*notify.SendResult)
	for _, channel := range fanout.Channels() {
		res, err := fanout.SendPending(ctx, channel)
		if err != nil {
			return err
		}
		notifications[channel] = res
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"run":           run,
		"notifications": notifications,
	})
}
