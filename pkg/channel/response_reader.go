package channel

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/harun/vsbridge/internal/metrics"
	"github.com/harun/vsbridge/pkg/protocol"
)

// ResponseReader tails a session's response log on behalf of one caller.
// Responses for other ids belong to other callers and are skipped without
// touching the file.
type ResponseReader struct {
	tailer  *Tailer
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewResponseReader creates a reader over tailer.
func NewResponseReader(tailer *Tailer, logger zerolog.Logger, m *metrics.Metrics) *ResponseReader {
	return &ResponseReader{
		tailer:  tailer,
		logger:  logger,
		metrics: m,
	}
}

// Poll reads newly completed records and returns the response for id if one
// has arrived. A nil response with a nil error means "not yet".
func (r *ResponseReader) Poll(id string) (*protocol.Response, error) {
	lines, err := r.tailer.ReadLines()
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		var resp protocol.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			r.metrics.RecordMalformed("response")
			r.logger.Warn().Err(err).Msg("Failed to parse response line")
			continue
		}

		if resp.ID == id {
			return &resp, nil
		}
	}

	return nil, nil
}
