package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/good-yellow-bee/climalert/internal/clock"
	"github.com/good-yellow-bee/climalert/internal/models"
)

// ErrMalformedPayload is returned for alert payloads that cannot be decoded.
var ErrMalformedPayload = errors.New("malformed alert payload")

// Fallback texts for missing optional fields.
const (
	FallbackCity        = "Cidade não informada"
	FallbackRegion      = "UF não informada"
	FallbackTemperature = "Temperatura não disponível"
	FallbackHumidity    = "N/A"
	FallbackDescription = "Sem descrição disponível"
)

// wireAlert is the weather-notification payload as sent by the server.
type wireAlert struct {
	CityName string          `json:"cityName"`
	UF       string          `json:"uf"`
	MinTemp  *json.Number    `json:"minTemp"`
	MaxTemp  *json.Number    `json:"maxTemp"`
	Humidity json.RawMessage `json:"humidity"`
	Message  string          `json:"message"`
	Date     string          `json:"date"`
}

// Codec decodes weather-notification payloads into AlertEvents.
type Codec struct {
	clock clock.Clock
}

// NewCodec creates a codec. A nil clock uses the system clock.
func NewCodec(clk clock.Clock) *Codec {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Codec{clock: clk}
}

// Decode parses a JSON object payload. Missing optional fields are replaced
// with fallback text, and a missing date with the current time.
func (c *Codec) Decode(data []byte) (models.AlertEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.AlertEvent{}, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	var w wireAlert
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return models.AlertEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return models.AlertEvent{}, fmt.Errorf("%w: trailing data after object", ErrMalformedPayload)
	}

	occurredAt, err := c.parseDate(w.Date)
	if err != nil {
		return models.AlertEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return models.AlertEvent{
		CityName:           orDefault(w.CityName, FallbackCity),
		RegionCode:         orDefault(w.UF, FallbackRegion),
		TemperatureSummary: temperatureSummary(w.MinTemp, w.MaxTemp),
		Humidity:           humidity(w.Humidity),
		Description:        orDefault(w.Message, FallbackDescription),
		OccurredAt:         occurredAt,
	}, nil
}

// Encode renders ev back into the wire format. Used by the local relay and
// test servers.
func (c *Codec) Encode(ev models.AlertEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func (c *Codec) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return c.clock.Now(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func temperatureSummary(minTemp, maxTemp *json.Number) string {
	if minTemp == nil || maxTemp == nil {
		return FallbackTemperature
	}
	return fmt.Sprintf("Min: %s°C, Max: %s°C", minTemp.String(), maxTemp.String())
}

func humidity(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return FallbackHumidity
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
