// Command downloader logs in, mirrors the ledger and pulls a date range of
// documents into a local directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/time/rate"

	"sri-invoice-subscription/internal/client"
	"sri-invoice-subscription/internal/config"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/infra/logging"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "API base url")
	email := flag.String("email", "", "account email")
	fingerprint := flag.String("device", "", "device fingerprint (defaults to hostname)")
	statePath := flag.String("state", defaultStatePath(), "local ledger cache")
	outDir := flag.String("out", "documents", "output directory")
	from := flag.String("from", "", "first day, YYYY-MM-DD")
	to := flag.String("to", "", "last day, YYYY-MM-DD")
	docType := flag.String("type", "", "document type filter")
	issuer := flag.String("issuer", "", "issuer RUC filter")
	rps := flag.Float64("rps", 2, "max fetch attempts per second, 0 = unlimited")
	lang := flag.String("lang", "es", "message language")
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)

	password := os.Getenv("SRI_DOWNLOADER_PASSWORD")
	if *email == "" || password == "" {
		logger.Fatal().Msg("-email and SRI_DOWNLOADER_PASSWORD are required")
	}
	if *fingerprint == "" {
		h, _ := os.Hostname()
		*fingerprint = h
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api, err := client.New(*server, client.WithLanguage(*lang))
	if err != nil {
		logger.Fatal().Err(err).Msg("client")
	}
	if _, err := api.Login(ctx, *email, password, *fingerprint); err != nil {
		logger.Fatal().Err(err).Msg("login")
	}

	mirror := client.NewMirror(api, client.NewFileStore(*statePath))
	snap, err := mirror.Pull(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("ledger pull failed; showing cached copy")
		if snap, err = mirror.Cached(ctx); err != nil {
			logger.Fatal().Err(err).Msg("no ledger available")
		}
	}
	logger.Info().
		Str("plan", string(snap.Ledger.PlanID)).
		Str("remaining", snap.Ledger.CreditsRemaining.String()).
		Bool("active", snap.Ledger.IsActive).
		Msg("ledger")

	if *from == "" || *to == "" {
		return
	}

	res, err := api.Download(ctx, client.DownloadQuery{
		From:    *from,
		To:      *to,
		Filters: model.DocumentFilters{Type: model.DocumentType(*docType), IssuerRUC: *issuer},
	})
	if denial, ok := client.IsDenied(err); ok {
		logger.Fatal().Int64("needed", denial.CreditsNeeded).Int64("available", denial.CreditsAvailable).Msg(denial.Message)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("download")
	}
	if err := mirror.Observe(ctx, res.Ledger); err != nil {
		logger.Warn().Err(err).Msg("cache ledger")
	}
	logger.Info().Int("documents", len(res.Documents)).Int64("credits", res.CreditsConsumed).Msg("billed")
	if res.Truncated {
		logger.Warn().Int("found", res.DocumentsFound).Msg("listing cut to the remaining credits; upgrade to fetch the rest")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("output dir")
	}
	opts := client.SessionOptions{
		Logger: logger,
		OnResult: func(r client.Result) {
			if r.Err == nil {
				logger.Debug().Str("access_key", r.Document.AccessKey).Msg("saved")
			}
		},
	}
	if *rps > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(*rps), 1)
	}
	session := client.NewSession(opts)
	go func() {
		<-ctx.Done()
		session.Stop()
	}()

	results, err := session.Run(ctx, res.Documents, writeDescriptor(*outDir))
	p := session.Progress()
	logger.Info().Int("done", p.Done).Int("failed", p.Failed).Int("skipped", p.Queued).Msg("session finished")
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("session")
	}
	for _, r := range results {
		if r.Err != nil && r.Attempts > 0 {
			fmt.Fprintf(os.Stderr, "%s\t%v\n", r.Document.AccessKey, r.Err)
		}
	}
	if p.Failed > 0 {
		os.Exit(1)
	}
}

// writeDescriptor stores each document record as <access key>.json.
func writeDescriptor(dir string) client.Fetcher {
	return client.FetcherFunc(func(ctx context.Context, d model.DocumentDescriptor) error {
		if d.AccessKey == "" {
			return client.Permanent(errors.New("document without access key"))
		}
		b, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return client.Permanent(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, filepath.Base(d.AccessKey)+".json"), b, 0o644)
	})
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".sri-downloader/ledger.json"
	}
	return filepath.Join(dir, "sri-downloader", "ledger.json")
}
