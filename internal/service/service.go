package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/config"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/download"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/jobs"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/persistence"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/poll"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/push"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/icron"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

// Service wires the API client, local job history, the reconciler, and
// the downloader into the operations the CLI exposes.
type Service struct {
	cfg        *config.Config
	client     *api.Client
	backend    *persistence.SQLiteStore
	store      *jobs.LocalStore
	reconciler *jobs.Reconciler
	downloader *download.Downloader
	printer    *message.Printer
}

// ConvertResult is the final state of one conversion plus where the CSV
// landed on disk.
type ConvertResult struct {
	Record     jobs.Record
	OutputPath string
}

func New(cfg *config.Config) (*Service, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	backend, err := persistence.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	client := api.NewClient(
		cfg.Server.BaseURL,
		cfg.Server.Timeout(),
		cfg.Upload.AcceptedTypes,
		cfg.Upload.MaxUploadBytes(),
	)
	store := jobs.NewLocalStore(backend, cfg.Store.MaxJobs)
	listener := push.NewListener(client.EventsURL, cfg.Push.MaxReconnects, cfg.Push.BackoffBase())
	poller := poll.New(client, cfg.Poll.Interval(), cfg.Poll.MaxAttempts)

	s := &Service{
		cfg:        cfg,
		client:     client,
		backend:    backend,
		store:      store,
		downloader: download.New(client, cfg.Download.OutputDir),
		printer:    message.NewPrinter(language.English),
	}
	s.reconciler = jobs.NewReconciler(store, listener, poller,
		jobs.WithOnChange(func(rec jobs.Record) {
			log.Debug("Job %s is now %s (ready=%v)", rec.JobID, rec.Status, rec.Ready)
		}))
	return s, nil
}

// Close releases the reconciler's observers and the store.
func (s *Service) Close() error {
	s.reconciler.Close()
	return s.backend.Close()
}

// Convert uploads one invoice and follows the job to its outcome. Small
// files the server converts synchronously skip tracking entirely; their
// response already carries a download URL.
func (s *Service) Convert(ctx context.Context, filePath string) (*ConvertResult, error) {
	resp, err := s.client.UploadInvoice(ctx, filePath)
	if err != nil {
		return nil, err
	}
	log.Info("Uploaded %s as job %s", resp.Filename, resp.JobID)

	if resp.DownloadURL != "" {
		rec := s.reconciler.Complete(resp.JobID, resp.Filename, resp.DownloadURL, resp.Execution)
		return s.finish(ctx, rec)
	}

	s.reconciler.Track(resp.JobID, resp.Filename, resp.Execution)
	return s.await(ctx)
}

// Resume re-attaches to a previously started job, waiting it out if it
// is still processing and downloading the result if it finished.
func (s *Service) Resume(ctx context.Context, jobID string) (*ConvertResult, error) {
	rec, err := s.reconciler.Resume(jobID)
	if err != nil {
		return nil, err
	}
	if rec.Status == jobs.StatusDone {
		return s.finish(ctx, *rec)
	}
	return s.await(ctx)
}

// ResumeAuto rehydrates history and, when exactly one job is still in
// flight, follows it to its outcome.
func (s *Service) ResumeAuto(ctx context.Context) (*ConvertResult, error) {
	resumed, all := s.reconciler.Rehydrate()
	if resumed == nil {
		return nil, fmt.Errorf("nothing to auto-resume (%d job(s) in local history); pass a job id", len(all))
	}
	log.Info("Auto-resumed job %s (%s)", resumed.JobID, resumed.Filename)
	return s.await(ctx)
}

// Rehydrate restores persisted history and, when exactly one job is
// still in flight, resumes observing it. It returns the resumed record
// (nil if none) and the full local history.
func (s *Service) Rehydrate() (*jobs.Record, []jobs.Record) {
	return s.reconciler.Rehydrate()
}

// Jobs lists local history, newest first.
func (s *Service) Jobs() []jobs.Record {
	return s.store.ListAll()
}

// Forget drops one job from local history without touching the server.
func (s *Service) Forget(jobID string) {
	s.store.Delete(jobID)
}

// SweepExpired removes local records older than the configured TTL.
func (s *Service) SweepExpired() int {
	return s.store.SweepExpired(s.cfg.Store.JobTTL())
}

// Files fetches the server-side uploads listing, backfilling the
// formatted total when the server omits it.
func (s *Service) Files(ctx context.Context) (*api.FilesResponse, error) {
	resp, err := s.client.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	if resp.FormattedTotalSize == "" {
		resp.FormattedTotalSize = s.printer.Sprintf("%d bytes", resp.TotalSize)
	}
	return resp, nil
}

// DeleteFile removes an uploaded file on the server.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := s.client.DeleteFile(ctx, fileID)
	if err != nil {
		return err
	}
	log.Info("Deleted remote file %s: %s", fileID, resp.Message)
	return nil
}

// Health probes the conversion service.
func (s *Service) Health(ctx context.Context) (*api.HealthResponse, error) {
	return s.client.Health(ctx)
}

// Watch keeps the client resident: it rehydrates on start, then runs
// the expiry sweep on the configured cron schedule until ctx ends.
func (s *Service) Watch(ctx context.Context) error {
	if info, err := icron.GetTriggerInfo(s.cfg.Store.SweepCron, time.Now()); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Store.SweepCron, err)
	} else {
		log.Info("Sweep schedule %q, next run in %s", info.Expression, info.TimeUntilNext.Round(time.Second))
	}

	if removed := s.SweepExpired(); removed > 0 {
		log.Info("Swept %d expired job(s) on startup", removed)
	}
	if resumed, all := s.Rehydrate(); resumed != nil {
		log.Info("Auto-resumed job %s (%s)", resumed.JobID, resumed.Filename)
	} else {
		log.Info("Tracking nothing; %d job(s) in local history", len(all))
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Store.SweepCron, func() {
		if removed := s.SweepExpired(); removed > 0 {
			log.Info("Swept %d expired job(s)", removed)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	defer c.Stop()

	<-ctx.Done()
	return nil
}

// await blocks on the reconciler's outcome, then downloads on success.
func (s *Service) await(ctx context.Context) (*ConvertResult, error) {
	out, err := s.reconciler.WaitTerminal(ctx)
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, out.Err
	}
	if out.Record.Status == jobs.StatusError {
		return &ConvertResult{Record: out.Record},
			fmt.Errorf("conversion failed: %s", out.Record.Error)
	}
	return s.finish(ctx, out.Record)
}

// finish downloads the CSV for a job that reached done.
func (s *Service) finish(ctx context.Context, rec jobs.Record) (*ConvertResult, error) {
	path, err := s.downloader.Save(ctx, rec.JobID, rec.DownloadURL, rec.Filename)
	if err != nil {
		return &ConvertResult{Record: rec}, err
	}
	return &ConvertResult{Record: rec, OutputPath: path}, nil
}
