package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/omniagent/app"
	"github.com/upb/omniagent/config"
	"github.com/upb/omniagent/internal/observability"
	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/routes"
	"github.com/upb/omniagent/services"
	"github.com/upb/omniagent/services/chat"
)

// version is set at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "omniagent",
		Short: "Privacy-aware router between a local Ollama runtime and cloud LLMs",
		Long: `omniagent sends each prompt to the cheapest backend that satisfies it:
images go to the local vision model, High privacy stays local, complex
requests go to the cloud when a credential is configured, and a failed
cloud call is retried once on the local text model.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd(), newStatusCmd(), newRouteCmd(), newAskCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd.Context(), func(deps *app.Dependencies) error {
				return serve(cmd.Context(), deps)
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd.Context(), func(deps *app.Dependencies) error {
				var env router.EnvironmentStatus
				if refresh {
					env = deps.Health.Refresh(cmd.Context())
				} else {
					env = deps.Health.Status(cmd.Context())
				}
				writeStatus(cmd.OutOrStdout(), env, deps.Config.Backends.KeyHint(), deps.Catalog)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Probe the local runtime instead of using the cache")
	return cmd
}

func newRouteCmd() *cobra.Command {
	var privacy string
	var hasImage bool
	cmd := &cobra.Command{
		Use:   "route [text...]",
		Short: "Show which backend a prompt would be sent to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := router.ParsePrivacyMode(privacy)
			if err != nil {
				return err
			}
			return withDependencies(cmd.Context(), func(deps *app.Dependencies) error {
				preview, err := deps.Chat.Preview(cmd.Context(), chat.Prompt{
					Text:          strings.Join(args, " "),
					PrivacyMode:   mode,
					ImageAttached: hasImage,
				})
				if err != nil {
					return userError(err)
				}
				return writeJSON(cmd.OutOrStdout(), preview)
			})
		},
	}
	cmd.Flags().StringVar(&privacy, "privacy", string(router.PrivacyNormal), "Privacy mode: Normal or High")
	cmd.Flags().BoolVar(&hasImage, "image", false, "Route as if an image were attached")
	return cmd
}

func newAskCmd() *cobra.Command {
	var privacy, imagePath string
	cmd := &cobra.Command{
		Use:   "ask [text...]",
		Short: "Send one prompt and print the answer",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := router.ParsePrivacyMode(privacy)
			if err != nil {
				return err
			}

			var image string
			if imagePath != "" {
				raw, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				image = base64.StdEncoding.EncodeToString(raw)
			}

			return withDependencies(cmd.Context(), func(deps *app.Dependencies) error {
				result, err := deps.Chat.Ask(cmd.Context(), chat.Prompt{
					Text:        strings.Join(args, " "),
					ImageBase64: image,
					PrivacyMode: mode,
				})
				if err != nil {
					return userError(err)
				}
				writeAnswer(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&privacy, "privacy", string(router.PrivacyNormal), "Privacy mode: Normal or High")
	cmd.Flags().StringVar(&imagePath, "image", "", "Path to an image to attach")
	return cmd
}

// withDependencies loads configuration, wires the application and closes
// it after fn returns.
func withDependencies(ctx context.Context, fn func(deps *app.Dependencies) error) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		_ = logger.Sync()
		return err
	}

	runErr := fn(deps)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := deps.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// serve runs the HTTP server until ctx is cancelled. In-flight requests see
// their context cancelled as soon as shutdown begins.
func serve(ctx context.Context, deps *app.Dependencies) error {
	cfg := deps.Config
	logger := deps.Logger

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	cancelBase()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// userError turns a domain error into a message with its remediation
func userError(err error) error {
	details := services.GetErrorDetails(err)
	if remediation, ok := details["remediation"].(string); ok && remediation != "" {
		return fmt.Errorf("%w\n%s", err, remediation)
	}
	return err
}

func writeStatus(w io.Writer, env router.EnvironmentStatus, keyHint string, catalog router.Catalog) {
	fmt.Fprintf(w, "local backend:  %s (%s)\n", availability(env.LocalBackendAvailable, env.LocalBackendError), catalog.LocalText)
	fmt.Fprintf(w, "vision backend: %s\n", catalog.LocalVision)
	fmt.Fprintf(w, "cloud backend:  %s (provider %s, key %s)\n",
		availability(env.CloudBackendAvailable, ""), env.CloudKeyProvider, keyHint)
	fmt.Fprintf(w, "checked at:     %s\n", env.CheckedAt.Format("2006-01-02 15:04:05 MST"))
}

func availability(ok bool, reason string) string {
	switch {
	case ok:
		return "available"
	case reason != "":
		return "unavailable: " + reason
	default:
		return "unavailable"
	}
}

func writeAnswer(w io.Writer, result *chat.TurnResult) {
	fmt.Fprintln(w, result.Content)
	if result.Notice != "" {
		fmt.Fprintln(w, result.Notice)
	}
	fmt.Fprintf(w, "\n[%s via %s, %dms]\n", result.Decision.TargetBackend, result.Decision.Rule, result.LatencyMs)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
