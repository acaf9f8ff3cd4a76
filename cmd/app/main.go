package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bangd/internal"
	"github.com/starford/bangd/internal/mcpserver"
	"github.com/starford/bangd/internal/storage"
	pkgconfig "github.com/starford/bangd/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openApp opens the store and runs the first resolve. Logs go to stderr so
// command output on stdout stays clean.
func openApp(ctx context.Context, cmd *cli.Command) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	app, err := internal.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		logger.Warn("initial resolve failed", slog.String("error", err.Error()))
	}
	return app, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	return mcpserver.New(app.Service, app.Engine).ServeStdio()
}

func resolve(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return errors.New("usage: bangd resolve <query>")
	}
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	d := app.Engine.Resolve(query)
	if len(d.Navigations) == 0 {
		return fmt.Errorf("no bang resolved (%s)", d.Reason)
	}
	for _, n := range d.Navigations {
		fmt.Fprintf(os.Stdout, "%s\t%s\n", n.Kind, n.URL)
	}
	return nil
}

func export(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if out := cmd.String("out"); out != "" {
		fs, err := storage.NewFS(out)
		if err != nil {
			return err
		}
		f, err := app.Service.ExportTo(ctx, fs)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, f.Name)
		return nil
	}
	f, err := app.Service.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, f.Name)
	return nil
}

func importBackup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("usage: bangd import <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Service.Import(ctx, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "imported %d bangs from version %s backup (%d custom bangs total)\n",
		res.Imported, res.Version, res.Total)
	return nil
}

// refresh asks a running daemon to re-resolve. Without one it resolves
// against the store directly.
func refresh(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Catalog.Timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.App.HTTP.BaseURL()+"/api/refresh", nil)
	if err != nil {
		return err
	}
	if cfg.Auth.AuthEnabled() {
		req.Header.Set("Authorization", "Bearer "+cfg.Auth.Token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("daemon refused refresh: %s", resp.Status)
		}
		fmt.Fprintln(os.Stdout, "refreshed (daemon)")
		return nil
	}

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Service.Refresh(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "refreshed")
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "bangd",
		Usage:  "Local bang redirect daemon: turns !shortcuts typed in the search box into target URLs",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP daemon (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
			{
				Name:      "resolve",
				Usage:     "Print the target URLs a query resolves to",
				ArgsUsage: "<query>",
				Action:    resolve,
			},
			{
				Name:  "export",
				Usage: "Write a backup of the custom bangs and settings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Directory to write the backup to (default: backup.dir)",
					},
				},
				Action: export,
			},
			{
				Name:      "import",
				Usage:     "Merge a backup file into the store",
				ArgsUsage: "<file>",
				Action:    importBackup,
			},
			{
				Name:   "refresh",
				Usage:  "Re-fetch the default bang catalog",
				Action: refresh,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
