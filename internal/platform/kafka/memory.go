package kafka

import (
	"context"
	"io"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// MemoryBroker is an in-process stand-in for a Kafka cluster. Topics are
// split into partitions by key hash, each consumer group keeps committed
// offsets per partition, and consumers only see messages past their group's
// committed offset when they are created.
type MemoryBroker struct {
	mu         sync.Mutex
	partitions []int
	balancer   kafkago.Balancer
	topics     map[string][][]kafkago.Message
	committed  map[string]map[string][]int64
	written    map[string][]kafkago.Message
	changed    chan struct{}
}

func NewMemoryBroker(partitions int) *MemoryBroker {
	ids := make([]int, partitions)
	for i := range ids {
		ids[i] = i
	}
	return &MemoryBroker{
		partitions: ids,
		balancer:   &kafkago.Hash{},
		topics:     make(map[string][][]kafkago.Message),
		committed:  make(map[string]map[string][]int64),
		written:    make(map[string][]kafkago.Message),
		changed:    make(chan struct{}),
	}
}

// Producer returns a producer bound to topic.
func (b *MemoryBroker) Producer(topic string) Producer {
	return &memoryProducer{broker: b, topic: topic}
}

// Consumer returns a consumer for topic that resumes from groupID's committed offsets.
func (b *MemoryBroker) Consumer(topic, groupID string) Consumer {
	b.mu.Lock()
	defer b.mu.Unlock()

	cursor := make([]int64, len(b.partitions))
	copy(cursor, b.groupOffsetsLocked(topic, groupID))

	return &memoryConsumer{
		broker:  b,
		topic:   topic,
		groupID: groupID,
		cursor:  cursor,
		closed:  make(chan struct{}),
	}
}

// Messages returns every message written to topic in write order.
func (b *MemoryBroker) Messages(topic string) []kafkago.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]kafkago.Message(nil), b.written[topic]...)
}

// Committed returns how many messages of topic groupID has committed.
func (b *MemoryBroker) Committed(topic, groupID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, offset := range b.groupOffsetsLocked(topic, groupID) {
		total += offset
	}
	return int(total)
}

func (b *MemoryBroker) write(ctx context.Context, topic string, msg kafkago.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	partitions := b.partitionsLocked(topic)
	p := b.balancer.Balance(msg, b.partitions...)

	msg.Topic = topic
	msg.Partition = p
	msg.Offset = int64(len(partitions[p]))
	msg.Time = time.Now()
	msg.Headers = InjectTraceContext(ctx, append([]kafkago.Header(nil), msg.Headers...))
	partitions[p] = append(partitions[p], msg)
	b.written[topic] = append(b.written[topic], msg)

	close(b.changed)
	b.changed = make(chan struct{})
	return nil
}

func (b *MemoryBroker) partitionsLocked(topic string) [][]kafkago.Message {
	partitions, ok := b.topics[topic]
	if !ok {
		partitions = make([][]kafkago.Message, len(b.partitions))
		b.topics[topic] = partitions
	}
	return partitions
}

func (b *MemoryBroker) groupOffsetsLocked(topic, groupID string) []int64 {
	groups, ok := b.committed[topic]
	if !ok {
		groups = make(map[string][]int64)
		b.committed[topic] = groups
	}
	offsets, ok := groups[groupID]
	if !ok {
		offsets = make([]int64, len(b.partitions))
		groups[groupID] = offsets
	}
	return offsets
}

type memoryProducer struct {
	broker *MemoryBroker
	topic  string
}

func (p *memoryProducer) WriteMessage(ctx context.Context, msg kafkago.Message) error {
	return p.broker.write(ctx, p.topic, msg)
}

func (p *memoryProducer) Close() error { return nil }

type memoryConsumer struct {
	broker    *MemoryBroker
	topic     string
	groupID   string
	cursor    []int64
	next      int
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *memoryConsumer) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	for {
		c.broker.mu.Lock()
		partitions := c.broker.partitionsLocked(c.topic)
		for i := range partitions {
			p := (c.next + i) % len(partitions)
			if c.cursor[p] < int64(len(partitions[p])) {
				msg := partitions[p][c.cursor[p]]
				c.cursor[p]++
				c.next = p + 1
				c.broker.mu.Unlock()
				return msg, nil
			}
		}
		changed := c.broker.changed
		c.broker.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafkago.Message{}, ctx.Err()
		case <-c.closed:
			return kafkago.Message{}, io.EOF
		case <-changed:
		}
	}
}

func (c *memoryConsumer) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	offsets := c.broker.groupOffsetsLocked(c.topic, c.groupID)
	for _, msg := range msgs {
		if next := msg.Offset + 1; next > offsets[msg.Partition] {
			offsets[msg.Partition] = next
		}
	}
	return nil
}

func (c *memoryConsumer) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
