package clock

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestExecuteNiladic(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	tool := &Tool{now: func() time.Time { return fixed }}

	out, err := tool.Execute(context.Background(), "get_time", "{}")
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Time     string `json:"time"`
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if got.Time != "2026-03-14T09:26:53Z" {
		t.Errorf("time = %q", got.Time)
	}
}

func TestExecuteTimezone(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tool := &Tool{now: func() time.Time { return fixed }}

	out, err := tool.Execute(context.Background(), "get_time", `{"tz":"America/New_York"}`)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", got.Timezone)
	}
}

func TestExecuteBadTimezone(t *testing.T) {
	tool := New()
	if _, err := tool.Execute(context.Background(), "get_time", `{"tz":"Not/AZone"}`); err == nil {
		t.Error("want error for unknown timezone")
	}
}
