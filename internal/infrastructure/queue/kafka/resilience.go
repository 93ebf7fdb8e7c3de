package kafka

import (
	"errors"
	"io"
	"net"

	"github.com/segmentio/kafka-go"

	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/resilience"
)

var classifyKafkaError = resilience.TransientClassifier(isTransientKafkaError)

func isTransientKafkaError(err error) bool {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && isTransientKafkaError(e) {
				return true
			}
		}
		return false
	}
	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
