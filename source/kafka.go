package source

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.shardapply.dev/core/protocol"
)

// KafkaConfig configures a Kafka source.
type KafkaConfig struct {
	Brokers string `long:"brokers" env:"BROKERS" default:"127.0.0.1:9092" description:"Comma-separated Kafka broker addresses"`
	Topic   string `long:"topic" env:"TOPIC" description:"Topic of JSON-encoded change events"`
	Group   string `long:"group" env:"GROUP" default:"shardapply" description:"Kafka consumer group"`
	Version string `long:"version" env:"VERSION" default:"2.1.0" description:"Kafka protocol version"`
}

// Validate returns an error if the KafkaConfig is not well-formed.
func (c KafkaConfig) Validate() error {
	if len(c.brokers()) == 0 {
		return pb.NewValidationError("expected Brokers")
	} else if c.Topic == "" {
		return pb.NewValidationError("expected Topic")
	} else if c.Group == "" {
		return pb.NewValidationError("expected Group")
	} else if _, err := sarama.ParseKafkaVersion(c.Version); err != nil {
		return pb.ExtendContext(pb.NewValidationError("%s", err), "Version")
	}
	return nil
}

func (c KafkaConfig) brokers() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Kafka reads Events from a topic through a sarama consumer group. Each
// message value is one JSON-encoded Event. Offsets are marked only through
// Applied Events: a partition's offset advances to its last message for
// which it and all prior messages have applied. Events which were read but
// never applied are re-delivered after a restart or rebalance.
type Kafka struct {
	group      sarama.ConsumerGroup
	topic      string
	deliveries chan delivery
	cancel     context.CancelFunc
	done       chan struct{}

	offsets offsetTracker
}

type delivery struct {
	ev   pb.Event
	err  error
	msg  *sarama.ConsumerMessage
	sess sarama.ConsumerGroupSession
}

// NewKafka joins the consumer group of the KafkaConfig, and begins to consume
// its topic.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid kafka config")
	}
	var sc = sarama.NewConfig()
	sc.Version, _ = sarama.ParseKafkaVersion(cfg.Version)
	sc.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	var group, err = sarama.NewConsumerGroup(cfg.brokers(), cfg.Group, sc)
	if err != nil {
		return nil, errors.WithMessage(err, "creating consumer group")
	}
	return newKafka(group, cfg.Topic), nil
}

func newKafka(group sarama.ConsumerGroup, topic string) *Kafka {
	var ctx, cancel = context.WithCancel(context.Background())
	var k = &Kafka{
		group:      group,
		topic:      topic,
		deliveries: make(chan delivery),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go k.consume(ctx)
	return k
}

// Next returns the Event of the next consumed message.
func (k *Kafka) Next(ctx context.Context) (pb.Event, error) {
	select {
	case d := <-k.deliveries:
		if d.err != nil {
			return pb.Event{}, d.err
		}
		k.offsets.track(d)
		return d.ev, nil
	case <-ctx.Done():
		return pb.Event{}, ctx.Err()
	}
}

// Applied records that |ev| has applied, and marks the offset of its
// partition if it advanced. Applied may be called concurrently.
func (k *Kafka) Applied(ev pb.Event) { k.offsets.applied(ev) }

// Close leaves the consumer group.
func (k *Kafka) Close() error {
	k.cancel()
	<-k.done
	return k.group.Close()
}

// consume the topic until |ctx| is cancelled, re-joining the group after
// each session ends.
func (k *Kafka) consume(ctx context.Context) {
	defer close(k.done)

	// Errors is closed by the group's Close.
	go func() {
		for err := range k.group.Errors() {
			log.WithFields(log.Fields{"topic": k.topic, "err": err}).Warn("kafka consumer error")
		}
	}()

	for ctx.Err() == nil {
		if err := k.group.Consume(ctx, []string{k.topic}, &handler{deliveries: k.deliveries, offsets: &k.offsets}); err != nil {
			log.WithFields(log.Fields{"topic": k.topic, "err": err}).Warn("kafka consume failed (will retry)")

			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}
}

// handler implements sarama.ConsumerGroupHandler.
type handler struct {
	deliveries chan<- delivery
	offsets    *offsetTracker
}

// Setup begins a new session. Claims may have moved, so Events delivered
// by a prior session are no longer tracked, and are re-delivered from the
// last marked offset to whichever member now holds their partition.
func (h *handler) Setup(sarama.ConsumerGroupSession) error {
	h.offsets.reset()
	return nil
}

func (*handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		var d = delivery{sess: sess}

		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			d.msg = msg
		case <-sess.Context().Done():
			return nil
		}

		if err := json.Unmarshal(d.msg.Value, &d.ev); err != nil {
			d.err = errors.WithMessagef(err, "decoding event at %s/%d@%d",
				d.msg.Topic, d.msg.Partition, d.msg.Offset)
		}

		select {
		case h.deliveries <- d:
		case <-sess.Context().Done():
			return nil
		}
	}
}

// offsetTracker orders the deliveries of each partition, and finds the
// offset through which all of them have applied.
type offsetTracker struct {
	mu          sync.Mutex
	byEvent     map[eventKey][]*pending
	byPartition map[partitionKey][]*pending
}

type eventKey struct {
	shard pb.ShardID
	seqno int64
}

type partitionKey struct {
	topic     string
	partition int32
}

type pending struct {
	delivery
	applied bool
}

func (t *offsetTracker) track(d delivery) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byEvent == nil {
		t.byEvent = make(map[eventKey][]*pending)
		t.byPartition = make(map[partitionKey][]*pending)
	}
	var p = &pending{delivery: d}
	var ek = eventKey{d.ev.ShardID, d.ev.Seqno}
	var pk = partitionKey{d.msg.Topic, d.msg.Partition}

	t.byEvent[ek] = append(t.byEvent[ek], p)
	t.byPartition[pk] = append(t.byPartition[pk], p)
}

func (t *offsetTracker) applied(ev pb.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ek = eventKey{ev.ShardID, ev.Seqno}
	var ps = t.byEvent[ek]
	if len(ps) == 0 {
		log.WithFields(log.Fields{"shard": ev.ShardID, "seqno": ev.Seqno}).
			Debug("applied event has no tracked kafka delivery")
		return
	}
	var p = ps[0]
	if len(ps) == 1 {
		delete(t.byEvent, ek)
	} else {
		t.byEvent[ek] = ps[1:]
	}
	p.applied = true

	var pk = partitionKey{p.msg.Topic, p.msg.Partition}
	var queue = t.byPartition[pk]
	var last *pending
	for len(queue) != 0 && queue[0].applied {
		last, queue = queue[0], queue[1:]
	}
	if len(queue) == 0 {
		delete(t.byPartition, pk)
	} else {
		t.byPartition[pk] = queue
	}
	if last != nil {
		last.sess.MarkMessage(last.msg, "")
	}
}

func (t *offsetTracker) reset() {
	t.mu.Lock()
	t.byEvent, t.byPartition = nil, nil
	t.mu.Unlock()
}
