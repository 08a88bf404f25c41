package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092,"))
	assert.Nil(t, ParseBrokers(""))
}

func TestCreateWithoutBrokers(t *testing.T) {
	t.Parallel()

	_, err := CreatePublisher(watermill.NopLogger{}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	_, err = CreateSubscriber(watermill.NopLogger{}, nil, "flowbot")
	assert.ErrorIs(t, err, ErrNoBrokers)
}
