package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fortio.org/log"

	"github.com/bentsolheim/httpsink"
	"github.com/bentsolheim/httpsink/pkg/batch"
	"github.com/bentsolheim/httpsink/pkg/config"
)

func main() {
	// Command line flags
	var (
		configFlag    = flag.String("config", "", "Path to JSON config file")
		hostFlag      = flag.String("host", "", "Host for bare paths (overrides config)")
		portFlag      = flag.Int("port", 0, "Port for bare paths (overrides config)")
		schemeFlag    = flag.String("scheme", "", "http or https (overrides config)")
		outFlag       = flag.String("out", "", "Output directory (overrides config)")
		keepAliveFlag = flag.Bool("keepalive", true, "Reuse one connection per host")
		modeFlag      = flag.String("mode", "", "Body copy mode: length or available")
		insecureFlag  = flag.Bool("insecure", false, "Skip TLS certificate verification")
		logLevelFlag  = flag.String("loglevel", "", "Log level: debug, verbose, info, warning, error")
		saveFlag      = flag.String("save-config", "", "Write the effective settings to this file and exit")
		versionFlag   = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "httpsink - download files over HTTP/1.1")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  httpsink [options] <url|path>...")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Println("httpsink", httpsink.Version)
		return
	}

	log.SetDefaultsForClientTools()

	// Load config
	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}

	// Apply flags that were given explicitly
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			settings.Host = *hostFlag
		case "port":
			settings.Port = *portFlag
		case "scheme":
			settings.Scheme = *schemeFlag
		case "out":
			settings.OutputDir = *outFlag
		case "keepalive":
			settings.KeepAlive = *keepAliveFlag
		case "mode":
			settings.CopyMode = *modeFlag
		case "insecure":
			settings.InsecureTLS = *insecureFlag
		case "loglevel":
			settings.LogLevel = *logLevelFlag
		}
	})
	if flag.NArg() > 0 {
		settings.Paths = flag.Args()
	}

	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	if settings.LogLevel != "" {
		lvl, _ := log.ValidateLevel(settings.LogLevel)
		log.SetLogLevel(lvl)
	}

	if *saveFlag != "" {
		if err := settings.Save(*saveFlag); err != nil {
			log.Fatalf("Error saving config: %v", err)
		}
		log.Infof("Settings written to %s", *saveFlag)
		return
	}

	if len(settings.Paths) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	jobs, err := settings.Jobs()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	opts, err := settings.ToBatchOptions()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	// Handle interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := batch.Run(ctx, jobs, opts)
	summary := batch.Summarize(results)
	log.Infof("Done: %d ok, %d failed, %d bytes", summary.Ok, summary.Failed, summary.Bytes)

	if ctx.Err() != nil || summary.Cancelled > 0 {
		log.Warnf("Download cancelled (%d transfers interrupted)", summary.Cancelled)
		os.Exit(130)
	}
	if summary.Failed > 0 {
		for _, r := range results {
			if !r.Outcome.OK() {
				log.Errf("%s%s: %v (code %d)", r.Job.Host, r.Job.Path, r.Outcome, int(r.Outcome.Code))
			}
		}
		os.Exit(1)
	}
}
