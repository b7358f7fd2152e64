package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/tcassar-diss/syscount/syscount"
	"go.uber.org/zap"
)

func main() {
	var (
		interval = flag.Duration("interval", 5*time.Second, "how often to poll the kernel counter table")
		timeout  = flag.Duration("timeout", 0, "stop tracing after this long (0 = until interrupted)")
		output   = flag.String("output", "./stats/counts.json", "where to write the final counts")
		stream   = flag.Bool("stream", false, "count in user space from a ring buffer instead of in the kernel")
		pin      = flag.String("pin", "", "pin the counter table at this bpffs path")
	)

	flag.Parse()

	prodLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to get logger: %v", err)
	}

	logger := prodLogger.Sugar()

	reporter := syscount.NewCountsReporter(logger)

	tracer, err := syscount.NewTracer(logger, reporter, syscount.Config{
		PollInterval: *interval,
		Timeout:      *timeout,
		PinPath:      *pin,
	})
	if err != nil {
		logger.Fatalw("failed to create tracer", "err", err)
	}
	defer tracer.Close()

	ctx := context.Background()

	if *stream {
		err = tracer.RunStream(ctx)
	} else {
		err = tracer.Run(ctx)
	}

	if err != nil {
		logger.Fatalw("failed to trace", "err", err)
	}

	if err := reporter.WriteFile(*output); err != nil {
		logger.Fatalw("failed to write counts", "output", *output, "err", err)
	}
}
