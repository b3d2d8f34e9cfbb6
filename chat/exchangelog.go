package chat

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLogStream = "ragpilot:log"
	defaultLogMaxLen = 10000
)

// Exchange is one completed question/answer interaction.
type Exchange struct {
	SessionID    string
	Question     string
	Answer       string
	FirstTokenMs int64
	ElapsedMs    int64
}

// ExchangeLog records exchanges to a capped Redis stream for operator
// inspection. Failures to record never affect the exchange itself.
type ExchangeLog struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

var _ ExchangeRecorder = (*ExchangeLog)(nil)

// NewExchangeLog creates an exchange log writing to the given Redis client.
func NewExchangeLog(client *redis.Client) *ExchangeLog {
	return &ExchangeLog{
		client: client,
		stream: defaultLogStream,
		maxLen: defaultLogMaxLen,
		logger: slog.Default().With("component", "exchangelog"),
	}
}

// Record appends one exchange to the stream, trimming it approximately to
// the configured length.
func (l *ExchangeLog) Record(ctx context.Context, exchange Exchange) error {
	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"session":  exchange.SessionID,
			"question": exchange.Question,
			"answer":   exchange.Answer,
			"ttft_ms":  exchange.FirstTokenMs,
			"time_ms":  exchange.ElapsedMs,
		},
	}).Err()
}
