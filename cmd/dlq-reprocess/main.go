// dlq-reprocess просматривает топик dead letter и переигрывает исходные команды
// в их топики. По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	brokersEnv = "STOREFRONT_KAFKA__BROKERS"

	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
)

type options struct {
	brokers     []string
	sourceTopic string
	topicFilter string
	limit       int
	dryRun      bool
	fromNewest  bool
	idleTimeout time.Duration
	logLevel    string
}

func (o options) mode() string {
	if o.dryRun {
		return "dry-run"
	}
	return "execute"
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}
	if err := configureLogging(opts.logLevel); err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := execute(ctx, opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// parseOptions читает флаги; брокеры без флага берутся из окружения.
func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		opts    options
		brokers string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (default $"+brokersEnv+")")
	fs.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to scan")
	fs.StringVar(&opts.topicFilter, "topic-filter", "", "replay only letters from this original topic")
	fs.IntVar(&opts.limit, "limit", defaultLimit, "max letters to scan across all partitions")
	fs.BoolVar(&opts.dryRun, "dry-run", true, "log candidates only; -dry-run=false publishes them")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan the most recent letters of each partition")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	fs.StringVar(&opts.logLevel, "log-level", "info", "logrus level")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv(brokersEnv)
	}
	opts.brokers = splitList(brokers)
	opts.sourceTopic = strings.TrimSpace(opts.sourceTopic)
	opts.topicFilter = strings.TrimSpace(opts.topicFilter)

	var errs []error
	if len(opts.brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka brokers are required (-brokers or %s)", brokersEnv))
	}
	if opts.sourceTopic == "" {
		errs = append(errs, errors.New("-source-topic must not be empty"))
	}
	if opts.limit <= 0 {
		errs = append(errs, errors.New("-limit must be > 0"))
	}
	if opts.idleTimeout <= 0 {
		errs = append(errs, errors.New("-idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return options{}, err
	}
	return opts, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func configureLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)
	return nil
}

// execute открывает подключения к Kafka, прогоняет replay и закрывает их.
func execute(ctx context.Context, opts options) (summary, error) {
	conns, err := connect(opts)
	if err != nil {
		return summary{}, err
	}
	defer conns.Close()

	r := &replayer{
		opts:   opts,
		meta:   conns.meta,
		reader: conns.reader,
		sink:   conns.sink,
		logger: log.WithField("component", "dlq-reprocess"),
		now:    time.Now,
	}
	return r.run(ctx)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
