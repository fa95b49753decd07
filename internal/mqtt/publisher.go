package mqtt

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	"github.com/tphakala/streamrecorder/internal/logger"
	"github.com/tphakala/streamrecorder/internal/observability/metrics"
	"github.com/tphakala/streamrecorder/internal/recorder"
)

const (
	defaultQueueSize = 32

	stateSubtopic   = "state"
	segmentSubtopic = "segment"
)

type message struct {
	topic   string
	payload []byte
}

// Publisher forwards session events to MQTT. It implements recorder.Observer:
// callbacks only enqueue, a single worker publishes in order. Events are
// dropped when the queue is full so a slow broker never stalls capture.
type Publisher struct {
	client  Client
	topic   string
	queue   chan message
	metrics *metrics.MQTTMetrics
	now     func() time.Time
	log     logger.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

var _ recorder.Observer = (*Publisher)(nil)

// NewPublisher starts a publisher sending to <topic>/state and <topic>/segment
func NewPublisher(client Client, topic string, m *metrics.MQTTMetrics) *Publisher {
	p := &Publisher{
		client:  client,
		topic:   topic,
		queue:   make(chan message, defaultQueueSize),
		metrics: m,
		now:     time.Now,
		log:     GetLogger(),
		done:    make(chan struct{}),
	}
	p.wg.Go(p.worker)
	return p
}

// StateChanged implements recorder.Observer
func (p *Publisher) StateChanged(s *recorder.Session, from, to recorder.State) {
	p.enqueue(stateSubtopic, newStateEvent(s, from, to, p.now()))
}

// SegmentClosed implements recorder.Observer
func (p *Publisher) SegmentClosed(s *recorder.Session, seg recorder.SegmentInfo) {
	p.enqueue(segmentSubtopic, newSegmentEvent(s, seg))
}

func (p *Publisher) enqueue(subtopic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to encode MQTT event", logger.Error(err))
		return
	}

	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- message{topic: path.Join(p.topic, subtopic), payload: payload}:
	default:
		p.metrics.IncrementMessagesDropped()
		p.log.Warn("MQTT queue full, dropping event", logger.String("topic", subtopic))
	}
}

func (p *Publisher) worker() {
	for {
		select {
		case msg := <-p.queue:
			p.publish(msg)
		case <-p.done:
			// flush what was queued before Close
			for {
				select {
				case msg := <-p.queue:
					p.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(msg message) {
	if err := p.client.Publish(context.Background(), msg.topic, msg.payload); err != nil {
		p.log.Warn("failed to publish MQTT event",
			logger.String("topic", msg.topic),
			logger.Error(err))
		return
	}
	p.log.Debug("published MQTT event", logger.String("topic", msg.topic))
}

// Close publishes the queued events and stops the worker
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}
