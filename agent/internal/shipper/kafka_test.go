package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/hydrowatch/hydrowatch/pkg/types"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink_Publish(t *testing.T) {
	r := makeReport("run-42")
	r.Locations = append(r.Locations, types.LocationReport{
		LocationCode:      "BACNH.H1",
		CurrentlyDiverted: true,
		RecentPoorDays:    2,
		DaysSinceLastData: -1,
		MissingChannels:   []string{"wav"},
	})

	w := &fakeWriter{}
	sink := &KafkaSink{w: w}
	if err := sink.Publish(context.Background(), r); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("messages: got %d, want one per location", len(w.msgs))
	}

	m := w.msgs[1]
	if string(m.Key) != "BACNH.H1" {
		t.Errorf("Key = %q, want BACNH.H1", m.Key)
	}
	if len(m.Headers) != 1 || m.Headers[0].Key != "run_id" || string(m.Headers[0].Value) != "run-42" {
		t.Errorf("Headers = %+v", m.Headers)
	}
	var got SummaryMessage
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if !got.CurrentlyDiverted || got.RecentPoorDays != 2 || got.DaysSinceLastData != -1 {
		t.Errorf("summary = %+v", got)
	}
	if got.AsOf != r.AsOf || got.RunID != "run-42" {
		t.Errorf("run fields = %s %s", got.RunID, got.AsOf)
	}

	if err := sink.Close(); err != nil || !w.closed {
		t.Errorf("Close: err=%v closed=%v", err, w.closed)
	}
}

func TestKafkaSink_EmptyReportWritesNothing(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	sink := &KafkaSink{w: w}
	if err := sink.Publish(context.Background(), &types.Report{RunID: "empty"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestKafkaSink_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	sink := &KafkaSink{w: &fakeWriter{err: boom}}
	if err := sink.Publish(context.Background(), makeReport("x")); !errors.Is(err, boom) {
		t.Fatalf("Publish err = %v, want wrapped %v", err, boom)
	}
}
