package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v2"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	def := DefaultConfig()
	app := &cli.App{
		Name:    "sundaypaper",
		Usage:   "Weekly newsletter for small circles of friends",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Value: def.DBDriver, EnvVars: []string{"DB_DRIVER"}, Usage: "Storage backend: memory|sqlite|postgres|mysql"},
			&cli.StringFlag{Name: "db-dsn", Value: def.DBDSN, EnvVars: []string{"DATABASE_URL"}, Usage: "SQLite file path or database URL"},
			&cli.StringFlag{Name: "gemini-api-key", EnvVars: []string{"GEMINI_API_KEY"}, Usage: "Gemini API key"},
			&cli.StringFlag{Name: "gcp-project", EnvVars: []string{"GCP_PROJECT_ID"}, Usage: "GCP project for Vertex AI"},
			&cli.StringFlag{Name: "gcp-region", Value: def.Gemini.Region, EnvVars: []string{"GCP_REGION"}, Usage: "Vertex AI region"},
			&cli.StringFlag{Name: "gemini-model", Value: def.Gemini.Model, EnvVars: []string{"GEMINI_MODEL"}, Usage: "Gemini model name"},
			&cli.DurationFlag{Name: "puzzle-timeout", Value: def.PuzzleTimeout, EnvVars: []string{"PUZZLE_TIMEOUT"}, Usage: "Give up on the generator after this long"},
		},
		Commands: []*cli.Command{
			serveCmd(def),
			mcpCmd(),
			issuesCmd(),
			renderCmd(),
			circleCodeCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// configFromContext builds a Config from global and command flags.
func configFromContext(c *cli.Context) *Config {
	cfg := DefaultConfig()
	cfg.DBDriver = c.String("db-driver")
	cfg.DBDSN = c.String("db-dsn")
	cfg.Gemini = GeminiConfig{
		APIKey:    c.String("gemini-api-key"),
		ProjectID: c.String("gcp-project"),
		Region:    c.String("gcp-region"),
		Model:     c.String("gemini-model"),
	}
	cfg.PuzzleTimeout = c.Duration("puzzle-timeout")

	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if c.IsSet("session-secret") {
		cfg.SessionSecret = c.String("session-secret")
	}
	if c.IsSet("session-ttl") {
		cfg.SessionTTL = c.Duration("session-ttl")
	}
	if c.IsSet("mail-from") {
		cfg.MailFrom = c.String("mail-from")
	}
	if c.IsSet("mail-from-name") {
		cfg.MailFromName = c.String("mail-from-name")
	}
	if c.IsSet("aws-region") {
		cfg.AWSRegion = c.String("aws-region")
	}
	return cfg
}

// openApp opens storage and the puzzle generator and wires the services.
// The returned func releases both.
func openApp(ctx context.Context, cfg *Config, mailer Mailer) (*App, func(), error) {
	kv, err := openKV(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	gemini, err := openGenerator(ctx, cfg)
	if err != nil {
		kv.Close()
		return nil, nil, err
	}

	var gen PuzzleGenerator
	if gemini != nil {
		gen = gemini
	}
	app := NewApp(kv, gen, mailer, cfg)

	closeFn := func() {
		app.Shoebox.Wait()
		if gemini != nil {
			gemini.Close()
		}
		kv.Close()
	}
	return app, closeFn, nil
}

// serveCmd creates the serve command.
func serveCmd(def *Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "port", Value: def.Port, EnvVars: []string{"PORT"}, Usage: "Listen port"},
			&cli.StringFlag{Name: "session-secret", EnvVars: []string{"SESSION_SECRET"}, Usage: "Key signing session tokens"},
			&cli.DurationFlag{Name: "session-ttl", Value: def.SessionTTL, EnvVars: []string{"SESSION_TTL"}, Usage: "Session lifetime"},
			&cli.StringFlag{Name: "mail-from", EnvVars: []string{"MAIL_FROM"}, Usage: "Sender address; enables SES delivery"},
			&cli.StringFlag{Name: "mail-from-name", Value: def.MailFromName, EnvVars: []string{"MAIL_FROM_NAME"}, Usage: "Sender display name"},
			&cli.StringFlag{Name: "aws-region", Value: def.AWSRegion, EnvVars: []string{"AWS_REGION"}, Usage: "SES region"},
		},
		Action: func(c *cli.Context) error {
			cfg := configFromContext(c)
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			mailer, err := NewMailer(ctx, cfg.AWSRegion, cfg.MailFrom, cfg.MailFromName)
			if err != nil {
				return outputError(err)
			}
			app, closeApp, err := openApp(ctx, cfg, mailer)
			if err != nil {
				return outputError(err)
			}
			defer closeApp()

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           NewServer(app),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("Server listening on http://localhost:%s", cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return outputError(err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Println("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the newsletter tools over MCP on stdio",
		Action: func(c *cli.Context) error {
			// stdout carries the protocol.
			log.SetOutput(os.Stderr)

			app, closeApp, err := openApp(c.Context, configFromContext(c), nil)
			if err != nil {
				return outputError(err)
			}
			defer closeApp()

			return server.ServeStdio(NewMCPServer(app, Version))
		},
	}
}

// issuesCmd creates the issues command.
func issuesCmd() *cli.Command {
	return &cli.Command{
		Name:  "issues",
		Usage: "List a circle's issues, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "circle", Aliases: []string{"c"}, Required: true, Usage: "Circle code"},
		},
		Action: func(c *cli.Context) error {
			app, closeApp, err := openApp(c.Context, configFromContext(c), nil)
			if err != nil {
				return outputError(err)
			}
			defer closeApp()

			issues, err := app.Store.ListIssues(c.Context, normalizeCircle(c.String("circle")))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(issues)
		},
	}
}

// renderCmd creates the render command.
func renderCmd() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Print an issue as Markdown or HTML",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "circle", Aliases: []string{"c"}, Required: true, Usage: "Circle code"},
			&cli.StringFlag{Name: "id", Usage: "Issue id (defaults to the latest issue)"},
			&cli.BoolFlag{Name: "html", Usage: "Render HTML instead of Markdown"},
		},
		Action: func(c *cli.Context) error {
			app, closeApp, err := openApp(c.Context, configFromContext(c), nil)
			if err != nil {
				return outputError(err)
			}
			defer closeApp()

			circle := normalizeCircle(c.String("circle"))
			id := c.String("id")
			if id == "" && c.NArg() > 0 {
				id = c.Args().First()
			}

			var issue *Issue
			if id == "" {
				issues, err := app.Store.ListIssues(c.Context, circle)
				if err != nil {
					return outputError(err)
				}
				if len(issues) == 0 {
					return outputError(NewNotFound("issue", circle))
				}
				issue = issues[0]
			} else {
				issue, err = app.Store.GetIssue(c.Context, circle, id)
				if err != nil {
					return outputError(err)
				}
			}

			out := RenderMarkdown(issue)
			if c.Bool("html") {
				out, err = RenderHTML(issue)
				if err != nil {
					return outputError(err)
				}
			}
			_, err = fmt.Fprint(c.App.Writer, out)
			return err
		},
	}
}

// circleCodeCmd creates the circle-code command.
func circleCodeCmd() *cli.Command {
	return &cli.Command{
		Name:  "circle-code",
		Usage: "Suggest a new circle code",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprintln(c.App.Writer, GenerateCircleCode())
			return err
		},
	}
}

func normalizeCircle(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// outputJSON writes v as indented JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
