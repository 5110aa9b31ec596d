package sync

type metricsService struct {
	service Service
	metrics *Metrics
}

// NewMetricsService 统计 s 生成与接受的消息。
func NewMetricsService(s Service, m *Metrics) Service {
	return &metricsService{service: s, metrics: m}
}

func (s *metricsService) Digest() (Digest, error) {
	return s.service.Digest()
}

func (s *metricsService) Prepare(peer Digest) ([]Message, error) {

	msgs, err := s.service.Prepare(peer)

	for _, msg := range msgs {
		s.metrics.Prepared.With("kind", msg.Kind.String()).Add(1)
	}

	return msgs, err
}

func (s *metricsService) Receive(msg Message) error {

	err := s.service.Receive(msg)

	if err == nil {
		s.metrics.Received.With("kind", msg.Kind.String()).Add(1)
	}

	return err
}
