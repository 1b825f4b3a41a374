// Command zmupload uploads files to a mail server upload servlet and prints
// the attachment handles it returns as JSON.
//
// Usage:
//
//	zmupload [flags] file...
//
// Settings come from the optional YAML file given with -config; flags
// override it. A .env file in the working directory is loaded first, so
// ${VAR} references in the config can be kept out of the file.
//
// Examples:
//
//	zmupload -url https://mail.example.com/service/upload -token "$ZM_AUTH_TOKEN" report.pdf logo.png
//	zmupload -config /etc/zmupload.yaml -v scan.tiff
//
// When storage.mongodb.uri is configured, the handles are also saved so
// later API calls can look them up by request id.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/zimbra-api/upload-api/internal/config"
	"github.com/zimbra-api/upload-api/internal/metrics"
	"github.com/zimbra-api/upload-api/internal/storage"
	"github.com/zimbra-api/upload-api/internal/storage/mongodb"
	"github.com/zimbra-api/upload-api/pkg/message"
	"github.com/zimbra-api/upload-api/pkg/transport"
	"github.com/zimbra-api/upload-api/pkg/upload"
)

// errUsage is returned for invalid command lines
var errUsage = errors.New("usage: zmupload [flags] file...")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "zmupload: %v\n", err)
		}
		os.Exit(1)
	}
}

// options holds the parsed command line
type options struct {
	configPath string
	envFile    string
	url        string
	token      string
	admin      bool
	requestID  string
	userAgent  string
	textfile   string
	verbose    bool
	files      []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet("zmupload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.envFile, "env", ".env", "Path to .env file (ignored if missing)")
	fs.StringVar(&opts.url, "url", "", "Upload servlet URL (overrides upload.url)")
	fs.StringVar(&opts.token, "token", "", "Auth token (overrides upload.authToken)")
	fs.BoolVar(&opts.admin, "admin", false, "Send the token as an admin auth token")
	fs.StringVar(&opts.requestID, "request-id", "", "Request id echoed by the server (default: random)")
	fs.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header (overrides upload.userAgent)")
	fs.StringVar(&opts.textfile, "metrics-textfile", "", "Write metrics to this node exporter textfile")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose (debug) logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.files = fs.Args()
	if len(opts.files) == 0 {
		fs.Usage()
		return nil, errUsage
	}
	return opts, nil
}

func (o *options) overrides(c *config.Config) {
	if o.url != "" {
		c.Upload.URL = o.url
	}
	if o.token != "" {
		c.Upload.AuthToken = o.token
	}
	if o.admin {
		c.Upload.Admin = true
	}
	if o.userAgent != "" {
		c.Upload.UserAgent = o.userAgent
	}
	if o.textfile != "" {
		c.Metrics.Textfile = o.textfile
	}
	if o.verbose {
		c.Log.Level = "debug"
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath, opts.overrides)
	if err != nil {
		return err
	}

	logger := cfg.NewLogger(stderr)

	httpsConfig, err := cfg.HTTPSConfig()
	if err != nil {
		return err
	}

	httpsClient := transport.NewHTTPSClient(httpsConfig)
	logger.Debug("transport configured",
		"timeout", httpsClient.Config().Timeout,
		"insecure_skip_verify", httpsClient.Config().InsecureSkipVerify,
	)

	uploadMetrics := metrics.New()
	client := upload.NewClient(cfg.Upload.URL,
		upload.WithTransport(httpsClient),
		upload.WithAuth(cfg.AuthContext()),
		upload.WithUserAgent(cfg.Upload.UserAgent),
		upload.WithExtractor(cfg.Extractor()),
		upload.WithObserver(uploadMetrics),
		upload.WithLogger(logger),
	)

	var reqOpts []message.RequestOption
	if opts.requestID != "" {
		reqOpts = append(reqOpts, message.WithRequestID(opts.requestID))
	}
	req := message.NewRequestFromPaths(opts.files, reqOpts...)

	if skipped := len(opts.files) - len(req.Files()); skipped > 0 {
		logger.Warn("skipping paths that are not regular files", "count", skipped)
	}

	attachments, uploadErr := client.Upload(ctx, req)

	if cfg.Metrics.Textfile != "" {
		if err := uploadMetrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	if uploadErr != nil {
		return fmt.Errorf("upload failed: %w", uploadErr)
	}

	logger.Info("upload complete",
		"request_id", req.RequestID(),
		"attachments", len(attachments),
	)

	// The handles are printed before they are stored so a storage failure
	// never hides the result of a completed upload.
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(attachments); err != nil {
		return err
	}

	if cfg.Storage.MongoDB.URI != "" {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		if err := saveAttachments(ctx, store, req.RequestID(), attachments); err != nil {
			return err
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.AttachmentStore, error) {
	store, err := mongodb.NewStore(ctx, &mongodb.Config{
		URI:        cfg.Storage.MongoDB.URI,
		Database:   cfg.Storage.MongoDB.Database,
		Collection: cfg.Storage.MongoDB.Collection,
	})
	if err != nil {
		return nil, fmt.Errorf("opening attachment store: %w", err)
	}
	return store, nil
}

func saveAttachments(ctx context.Context, store storage.AttachmentStore, requestID string, attachments []message.Attachment) error {
	defer store.Close(context.Background())

	if err := store.Save(ctx, requestID, attachments); err != nil {
		return fmt.Errorf("saving attachments: %w", err)
	}
	return nil
}
