package streamtag_test

import (
	stdjson "encoding/json"
	"errors"
	"testing"

	"github.com/vpbank/netpaca/format/streamtag"
	"github.com/vpbank/netpaca/models"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name   string
		device map[string]string
		metric models.Metric
		want   string
	}{
		{
			name:   "sorted merge",
			device: map[string]string{"site": "dc1", "host": "sw1"},
			metric: models.Metric{Name: "ifdom_temp", Tags: map[string]string{"if_name": "Te1/1/1"}},
			want:   "ifdom_temp|ST[host:sw1,if_name:Te1/1/1,site:dc1]",
		},
		{
			name:   "metric tag wins",
			device: map[string]string{"host": "sw1"},
			metric: models.Metric{Name: "m", Tags: map[string]string{"host": "sw2"}},
			want:   "m|ST[host:sw2]",
		},
		{
			name:   "no tags",
			metric: models.Metric{Name: "m"},
			want:   "m|ST[]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := streamtag.Key(tt.device, tt.metric); got != tt.want {
				t.Errorf("Key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	enc := streamtag.New(streamtag.Config{}, nil)
	data, err := enc.Encode(map[string]string{"role": "leaf"}, []models.Metric{
		{Name: "temp", Value: 33.3, Timestamp: 1},
		{Name: "uptime", Value: uint64(12), Timestamp: 1},
		{Name: "bad", Value: struct{}{}, Timestamp: 1},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got map[string]float64
	if err := stdjson.Unmarshal(data, &got); err != nil {
		t.Fatalf("body is not a JSON object: %v\n%s", err, data)
	}
	if len(got) != 2 {
		t.Fatalf("got %d streams, want 2: %s", len(got), data)
	}
	if got["temp|ST[role:leaf]"] != 33.3 {
		t.Errorf("temp = %v", got["temp|ST[role:leaf]"])
	}
	if got["uptime|ST[role:leaf]"] != 12 {
		t.Errorf("uptime = %v", got["uptime|ST[role:leaf]"])
	}
	if enc.ContentType() != "application/json" {
		t.Errorf("ContentType = %q", enc.ContentType())
	}
}

func TestEncode_Empty(t *testing.T) {
	_, err := streamtag.New(streamtag.Config{}, nil).Encode(nil, nil)
	if !errors.Is(err, streamtag.ErrEmpty) {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}
