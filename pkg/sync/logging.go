package sync

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

type loggingService struct {
	logger  log.Logger
	service Service
}

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {
	return &loggingService{logger, s}
}

func (s *loggingService) Digest() (Digest, error) {

	d, err := s.service.Digest()

	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to build digest", "err", err)
	} else {
		level.Debug(s.logger).Log("method", "Digest", "entries", len(d.Entries))
	}

	return d, err
}

// Prepare wraps this service's Prepare method
// with added logging capabilities.
func (s *loggingService) Prepare(peer Digest) ([]Message, error) {

	msgs, err := s.service.Prepare(peer)

	logger := log.With(s.logger,
		"method", "Prepare",
		"peer", peer.Node,
	)

	if err != nil {
		level.Warn(logger).Log("msg", "failed to prepare messages", "err", err)
	} else {
		level.Debug(logger).Log("messages", len(msgs))
	}

	return msgs, err
}

// Receive wraps this service's Receive method
// with added logging capabilities.
func (s *loggingService) Receive(msg Message) error {

	err := s.service.Receive(msg)

	logger := log.With(s.logger,
		"method", "Receive",
		"from", msg.From,
		"name", msg.Name,
		"kind", msg.Kind,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to receive message", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}
