package kafka

import (
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healnet/donation-matching/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("don-1"),
		Value:     []byte(`{"id":"don-1"}`),
		Topic:     "donations-submitted",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("web")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("don-1"), raw.Key)
	assert.JSONEq(t, `{"id":"don-1"}`, string(raw.Value))
	assert.Equal(t, "donations-submitted", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "web", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 10, 0, 0, time.UTC)
	result := domain.MatchResult{
		RunID:      "run-1",
		DonationID: "don-1",
		Matches: []domain.ScoredMatch{
			{Need: domain.Need{ID: "need-1"}, Score: domain.MatchScore{Total: 0.82}, MatchQuality: domain.MatchExcellent},
			{Need: domain.Need{ID: "need-2"}, Score: domain.MatchScore{Total: 0.41}, MatchQuality: domain.MatchFair},
		},
		GeneratedAt: now,
	}

	msg, err := serializeToMessage(result)
	require.NoError(t, err)

	assert.Equal(t, []byte("don-1"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "match_count", msg.Headers[1].Key)
	assert.Equal(t, []byte("2"), msg.Headers[1].Value)
	assert.Equal(t, "generated_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	var decoded domain.MatchResult
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "don-1", decoded.DonationID)
	require.Len(t, decoded.Matches, 2)
	assert.Equal(t, "need-1", decoded.Matches[0].Need.ID)
	assert.Equal(t, domain.MatchExcellent, decoded.Matches[0].MatchQuality)
}

func TestSerializeToMessage_NoMatches(t *testing.T) {
	msg, err := serializeToMessage(domain.MatchResult{RunID: "r", DonationID: "d", Matches: []domain.ScoredMatch{}})
	require.NoError(t, err)
	assert.Equal(t, []byte("0"), msg.Headers[1].Value)
	assert.Contains(t, string(msg.Value), `"matches":[]`)
}
