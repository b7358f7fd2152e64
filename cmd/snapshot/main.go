package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/tcassar-diss/syscount/syscount"
	"go.uber.org/zap"
)

func main() {
	window := flag.Duration("window", 2*time.Second, "how long to count before dumping")
	asJSON := flag.Bool("json", false, "dump the counts as a JSON array")

	flag.Parse()

	prodLog, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	logger := prodLog.Sugar()

	probe, err := syscount.NewProbe(logger)
	if err != nil {
		logger.Fatalw("failed to load probe", "err", err)
	}
	defer probe.Close()

	tp, err := probe.AttachCounter()
	if err != nil {
		logger.Fatalw("failed to attach probe", "err", err)
	}
	defer tp.Close()

	logger.Infow("counting syscalls", "window", *window)

	time.Sleep(*window)

	snap, err := probe.Counts()
	if err != nil {
		logger.Fatalw("failed to read counter table", "err", err)
	}

	if *asJSON {
		bts, err := json.Marshal(snap.NonZero())
		if err != nil {
			logger.Fatalw("failed to marshal counts", "err", err)
		}

		fmt.Println(string(bts))

		return
	}

	for _, stat := range snap.NonZero() {
		fmt.Printf("syscall_%d\t%d\n", stat.SyscallNr, stat.Count)
	}
}
