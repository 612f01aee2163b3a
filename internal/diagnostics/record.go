package diagnostics

import "time"

// ConnectionType tags the front-end a record came from.
type ConnectionType string

const (
	ConnectionHTTP      ConnectionType = "HTTP"
	ConnectionWebSocket ConnectionType = "WEBSOCKET"
)

// CallRecord describes one request, optionally completed with its response.
type CallRecord struct {
	ID           int64          `json:"id"`
	RequestTime  time.Time      `json:"request_time"`
	RequestIP    string         `json:"request_ip"`
	RequestType  string         `json:"request_type"`
	RequestURL   string         `json:"request_url"`
	Connection   ConnectionType `json:"connection"`
	ResponseTime *time.Time     `json:"response_time,omitempty"`
	ResponseCode *int           `json:"response_code,omitempty"`
	ResponseData *string        `json:"response_data,omitempty"`
}

// WithResponse returns a copy of c completed with the response metadata.
// data may be nil when the response had no textual payload.
func (c CallRecord) WithResponse(code int, data *string) CallRecord {
	now := time.Now()
	c.ResponseTime = &now
	c.ResponseCode = &code
	c.ResponseData = data
	return c
}

// Completed reports whether response metadata is present.
func (c CallRecord) Completed() bool {
	return c.ResponseCode != nil
}

// Latency returns the time between request and response, or zero for a
// record that has not completed.
func (c CallRecord) Latency() time.Duration {
	if c.ResponseTime == nil {
		return 0
	}
	return c.ResponseTime.Sub(c.RequestTime)
}

// Equal compares two records. When lazy is set only the ids are compared.
func (c CallRecord) Equal(other CallRecord, lazy bool) bool {
	if c.ID != other.ID {
		return false
	}
	if lazy {
		return true
	}
	return c.RequestTime.Equal(other.RequestTime) &&
		c.RequestIP == other.RequestIP &&
		c.RequestType == other.RequestType &&
		c.RequestURL == other.RequestURL &&
		c.Connection == other.Connection &&
		equalTime(c.ResponseTime, other.ResponseTime) &&
		equalPtr(c.ResponseCode, other.ResponseCode) &&
		equalPtr(c.ResponseData, other.ResponseData)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
