package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.shardapply.dev/core/applier"
	mbp "go.shardapply.dev/core/mainboilerplate"
	"go.shardapply.dev/core/pipeline"
	pb "go.shardapply.dev/core/protocol"
	"go.shardapply.dev/core/source"
)

type cmdServe struct {
	Source string             `long:"source" env:"SOURCE" default:"file" choice:"file" choice:"kafka" description:"Source of change events"`
	File   string             `long:"file" env:"FILE" default:"-" description:"Path of a file of JSON-encoded events. '-' reads from stdin"`
	Kafka  source.KafkaConfig `group:"Kafka" namespace:"kafka" env-namespace:"KAFKA"`
}

func (cmd *cmdServe) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	mbp.InitLog(Config.Log)

	log.WithFields(log.Fields{
		"channels":  Config.Apply.Channels,
		"source":    cmd.Source,
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Info("starting shardapply")

	var ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var service, err = newAssignmentService()
	mbp.Must(err, "building channel assignment service")
	mbp.Must(service.Prepare(ctx), "preparing channel assignment service")
	defer service.Close()

	targetDialect, err := Config.Target.Dialect()
	mbp.Must(err, "target")

	var channels []*applier.Channel
	for i := 0; i != Config.Apply.Channels; i++ {
		var ch, err = applier.NewChannel(applier.ChannelConfig{
			ID:             pb.Channel(i),
			QueueSize:      Config.Apply.QueueSize,
			MaxRows:        Config.Apply.MaxRows,
			TableCacheSize: Config.Apply.TableCacheSize,
			TableCacheTTL:  Config.Apply.TableCacheTTL,
		}, targetDialect, Config.Target.Open)
		mbp.Must(err, "opening apply channel", "channel", i)
		channels = append(channels, ch)
	}

	coordinator, err := pipeline.NewCoordinator(service, channels)
	mbp.Must(err, "building coordinator")

	http.HandleFunc("/debug/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var enc = json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(coordinator.Status())
	})

	src, closeSrc, err := cmd.openSource()
	mbp.Must(err, "opening event source")

	err = coordinator.Run(ctx, src)

	if err := closeSrc(); err != nil {
		log.WithField("err", err).Warn("failed to close event source")
	}
	for _, ch := range channels {
		logChannelSummary(ch.Status())
		if err := ch.Close(); err != nil {
			log.WithFields(log.Fields{"channel": ch.ID(), "err": err}).Warn("failed to close channel")
		}
	}
	mbp.Must(err, "apply pipeline failed")

	log.Info("goodbye")
	return nil
}

// openSource returns the configured pipeline.Source and its close function.
func (cmd *cmdServe) openSource() (pipeline.Source, func() error, error) {
	switch cmd.Source {
	case "kafka":
		var k, err = source.NewKafka(cmd.Kafka)
		if err != nil {
			return nil, nil, err
		}
		return k, k.Close, nil
	case "file":
		var f, err = source.OpenFile(cmd.File)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
	return nil, nil, errors.Errorf("unknown source %q", cmd.Source)
}

func logChannelSummary(s applier.Status) {
	var fields = log.Fields{
		"channel":   s.ID,
		"events":    humanize.Comma(s.Events),
		"rows":      humanize.Comma(s.Rows),
		"lastSeqno": s.LastSeqno,
		"warnings":  s.Warnings,
	}
	if s.Halted {
		fields["err"] = s.Err
		log.WithFields(fields).Error("apply channel halted")
	} else {
		log.WithFields(fields).Info("apply channel stopped")
	}
}

