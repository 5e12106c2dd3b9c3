package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/config"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/jobs"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/service"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

const usage = `Usage: pdf2csv [-config file] <command> [args]

Commands:
  convert <file.pdf>   upload an invoice and wait for the CSV
  resume [jobID]       re-attach to a previously started job (no id:
                       auto-resume the single in-flight job)
  jobs                 list local job history
  files                list files stored on the server
  rm <fileID>          delete a file on the server
  forget <jobID>       drop a job from local history
  health               check the conversion service
  watch                stay resident, sweeping expired jobs on schedule
`

func main() {
	// A .env file is optional; real environment variables win either way.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdf2csv: %v\n", err)
		os.Exit(1)
	}
	log.InitLogger(log.ParseLevel(cfg.Log.Level))

	svc, err := service.New(cfg)
	if err != nil {
		log.Fatal("Failed to start: %v", err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, svc, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Error("%v", err)
		stop()
		svc.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *service.Service, command string, args []string) error {
	switch command {
	case "convert":
		if len(args) != 1 {
			return fmt.Errorf("convert expects exactly one file")
		}
		res, err := svc.Convert(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job %s finished, CSV written to %s\n", res.Record.JobID, res.OutputPath)
		return nil

	case "resume":
		var res *service.ConvertResult
		var err error
		switch len(args) {
		case 0:
			res, err = svc.ResumeAuto(ctx)
		case 1:
			res, err = svc.Resume(ctx, args[0])
		default:
			return fmt.Errorf("resume expects at most one job id")
		}
		if err != nil {
			return err
		}
		fmt.Printf("Job %s finished, CSV written to %s\n", res.Record.JobID, res.OutputPath)
		return nil

	case "jobs":
		history := svc.Jobs()
		if len(history) == 0 {
			fmt.Println("No local jobs.")
			return nil
		}
		for _, rec := range history {
			printJob(rec)
		}
		return nil

	case "files":
		resp, err := svc.Files(ctx)
		if err != nil {
			return err
		}
		for _, f := range resp.Files {
			fmt.Printf("%-24s  %10d  %s\n", f.FileID, f.Size, f.Filename)
		}
		fmt.Printf("%d file(s), %s\n", resp.TotalFiles, resp.FormattedTotalSize)
		return nil

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("rm expects a file id")
		}
		return svc.DeleteFile(ctx, args[0])

	case "forget":
		if len(args) != 1 {
			return fmt.Errorf("forget expects a job id")
		}
		svc.Forget(args[0])
		return nil

	case "health":
		resp, err := svc.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Service is %s (%s)\n", resp.Status, resp.Timestamp)
		return nil

	case "watch":
		return svc.Watch(ctx)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printJob(rec jobs.Record) {
	line := fmt.Sprintf("%-20s  %-10s  %s", rec.JobID, rec.Status, rec.Filename)
	if rec.Status == jobs.StatusError && rec.Error != "" {
		line += "  (" + rec.Error + ")"
	}
	fmt.Println(line)
}
